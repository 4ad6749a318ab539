package client

import (
	"regexp"
	"strings"
	"time"
)

const (
	RoleClient = "client"
	RoleLead   = "lead"
)

// ProspectUIDPrefix marks clients created from an inbound WhatsApp message
// before they had an identity account.
const ProspectUIDPrefix = "whatsapp:"

var (
	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	phoneNoise  = regexp.MustCompile(`[\s()-]`)
)

type Client struct {
	ID        string    `json:"id" firestore:"-"`
	UID       string    `json:"uid" firestore:"uid"`
	Name      string    `json:"name" firestore:"name"`
	Phone     string    `json:"phone,omitempty" firestore:"phone,omitempty"`
	Address   string    `json:"address,omitempty" firestore:"address,omitempty"`
	Roles     []string  `json:"roles,omitempty" firestore:"roles,omitempty"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// IsProspect reports whether the record is an unconverted lead that a real
// registration may take over.
func (c *Client) IsProspect() bool {
	if strings.HasPrefix(c.UID, ProspectUIDPrefix) {
		return true
	}
	for _, r := range c.Roles {
		if r == RoleLead {
			return true
		}
	}
	return false
}

// NormalizePhone strips spaces, parentheses and dashes.
func NormalizePhone(phone string) string {
	return phoneNoise.ReplaceAllString(strings.TrimSpace(phone), "")
}

func ValidPhone(phone string) bool {
	return e164Pattern.MatchString(phone)
}
