package models

import (
	"encoding/json"
	"fmt"
)

// IdentityPatch is a partial user record as returned by the identity API.
// Decoding keeps track of which keys were present so that Apply can tell
// "key absent, keep the previous value" apart from "key present with null,
// the server cleared the field". A plain struct unmarshal cannot make that
// distinction, and falsy coalescing would resurrect stale values.
type IdentityPatch struct {
	fields map[string]json.RawMessage
}

func (p *IdentityPatch) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode identity patch: %w", err)
	}
	p.fields = fields
	return nil
}

func (p IdentityPatch) Has(key string) bool {
	_, ok := p.fields[key]
	return ok
}

func (p IdentityPatch) str(key string) (string, bool) {
	raw, ok := p.fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// strPtr reports (value, present). A present null key yields (nil, true).
func (p IdentityPatch) strPtr(key string) (*string, bool) {
	raw, ok := p.fields[key]
	if !ok {
		return nil, false
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return s, true
}

// Apply merges the patch over base field by field. A field is overwritten
// whenever its key is present in the response, including when the value is
// null or empty; absent keys leave the previous value untouched.
func (p IdentityPatch) Apply(base Identity) Identity {
	out := base

	if v, ok := p.str("email"); ok && v != "" {
		out.Email = v
	}
	if v, ok := p.str("role"); ok {
		if role, err := ParseRole(v); err == nil {
			out.Role = role
		}
	}

	// The API is inconsistent about the display-name key; "username" wins
	// over "name" when both are present. This is the one sanctioned
	// duck-typed fallback, normalized here at the boundary.
	if v, ok := p.str("username"); ok {
		out.Username = v
	} else if v, ok := p.str("name"); ok {
		out.Username = v
	}

	if v, ok := p.strPtr("phone"); ok {
		out.Phone = v
	}
	if v, ok := p.strPtr("dob"); ok {
		out.DOB = v
	}
	if v, ok := p.strPtr("gender"); ok {
		out.Gender = v
	}
	if v, ok := p.strPtr("address"); ok {
		out.Address = v
	}
	if v, ok := p.strPtr("avatar"); ok {
		out.Avatar = v
	}
	if v, ok := p.strPtr("status"); ok {
		out.Status = v
	}

	return out
}
