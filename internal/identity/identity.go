package identity

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
	RoleGuest  Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleClient, RoleGuest:
		return true
	}
	return false
}

// Identity is the caller as established by a verified ID token.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

func (i *Identity) HasRole(allowed ...Role) bool {
	if i == nil || i.Role == "" {
		return false
	}
	for _, r := range allowed {
		if i.Role == r {
			return true
		}
	}
	return false
}

// Actor names the caller in audit fields: uid, then email, then "manual".
func (i *Identity) Actor() string {
	switch {
	case i == nil:
		return "manual"
	case i.UID != "":
		return i.UID
	case i.Email != "":
		return i.Email
	}
	return "manual"
}

type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        Role   `json:"role,omitempty"`
	Disabled    bool   `json:"disabled"`
}

type CreateUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
	Role        Role   `json:"role,omitempty"`
}

type UserPage struct {
	Users         []*User `json:"users"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}
