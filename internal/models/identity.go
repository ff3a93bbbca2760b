package models

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStaff   Role = "STAFF"
	RoleUser    Role = "USER"
	RoleCompany Role = "COMPANY"
)

// Privileged roles get their own storage namespace so that an ADMIN and a
// STAFF session can coexist in the shared persistent tier without clobbering
// each other. USER and COMPANY share the legacy unprefixed keys.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleStaff
}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleStaff, RoleUser, RoleCompany:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the authenticated principal, independent of its credential.
// Pointer fields distinguish "explicitly cleared" (non-nil pointing at empty
// is never produced; cleared means nil after a null from the API) from
// "never set". Email is the stable identifier used for refresh.
type Identity struct {
	Email    string  `json:"email"`
	Role     Role    `json:"role"`
	Username string  `json:"username"`
	Phone    *string `json:"phone,omitempty"`
	DOB      *string `json:"dob,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Address  *string `json:"address,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Status   *string `json:"status,omitempty"`
}

func (i Identity) Encode() (string, error) {
	raw, err := json.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	return string(raw), nil
}

func DecodeIdentity(raw string) (Identity, error) {
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}
