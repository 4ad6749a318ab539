package client

import "subscriptionOpsAPI/internal/apperrors"

type CreateRequest struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type UpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

func (r *CreateRequest) Validate() error {
	if r.UID == "" {
		return apperrors.Validationf("uid is required")
	}
	if len(r.Name) < 2 {
		return apperrors.Validationf("name must have at least 2 characters")
	}
	if r.Phone != "" {
		r.Phone = NormalizePhone(r.Phone)
		if !ValidPhone(r.Phone) {
			return apperrors.Validationf("phone must be in E.164 format")
		}
	}
	if r.Address != "" && len(r.Address) < 3 {
		return apperrors.Validationf("address must have at least 3 characters")
	}
	return nil
}

func (r *UpdateRequest) Validate() error {
	if r.Name == nil && r.Phone == nil && r.Address == nil {
		return apperrors.Validationf("at least one field is required")
	}
	if r.Name != nil && len(*r.Name) < 2 {
		return apperrors.Validationf("name must have at least 2 characters")
	}
	if r.Phone != nil {
		p := NormalizePhone(*r.Phone)
		if !ValidPhone(p) {
			return apperrors.Validationf("phone must be in E.164 format")
		}
		r.Phone = &p
	}
	if r.Address != nil && len(*r.Address) < 3 {
		return apperrors.Validationf("address must have at least 3 characters")
	}
	return nil
}
