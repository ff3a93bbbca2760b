package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"ADMIN", "STAFF", "USER", "COMPANY"} {
		role, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, Role(valid), role)
	}

	_, err := ParseRole("admin")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestPrivileged(t *testing.T) {
	assert.True(t, RoleAdmin.Privileged())
	assert.True(t, RoleStaff.Privileged())
	assert.False(t, RoleUser.Privileged())
	assert.False(t, RoleCompany.Privileged())
}

func TestIdentityEncodeDecode(t *testing.T) {
	phone := "0905123456"
	id := Identity{
		Email:    "mai@example.com",
		Role:     RoleCompany,
		Username: "mai",
		Phone:    &phone,
	}

	raw, err := id.Encode()
	require.NoError(t, err)

	decoded, err := DecodeIdentity(raw)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)

	_, err = DecodeIdentity("{broken")
	assert.Error(t, err)
}

func decodePatch(t *testing.T, raw string) IdentityPatch {
	t.Helper()
	var patch IdentityPatch
	require.NoError(t, json.Unmarshal([]byte(raw), &patch))
	return patch
}

func TestPatchApplyPresence(t *testing.T) {
	phone := "123"
	address := "Da Nang"
	base := Identity{
		Email:    "trang@example.com",
		Role:     RoleUser,
		Username: "trang",
		Phone:    &phone,
		Address:  &address,
	}

	t.Run("null clears, absent keeps", func(t *testing.T) {
		merged := decodePatch(t, `{"phone":null}`).Apply(base)
		assert.Nil(t, merged.Phone)
		require.NotNil(t, merged.Address)
		assert.Equal(t, "Da Nang", *merged.Address)
	})

	t.Run("empty string is adopted, not dropped", func(t *testing.T) {
		merged := decodePatch(t, `{"address":""}`).Apply(base)
		require.NotNil(t, merged.Address)
		assert.Equal(t, "", *merged.Address)
	})

	t.Run("value overwrites", func(t *testing.T) {
		merged := decodePatch(t, `{"phone":"456","status":"ACTIVE"}`).Apply(base)
		require.NotNil(t, merged.Phone)
		assert.Equal(t, "456", *merged.Phone)
		require.NotNil(t, merged.Status)
		assert.Equal(t, "ACTIVE", *merged.Status)
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		merged := decodePatch(t, `{}`).Apply(base)
		assert.Equal(t, base, merged)
	})
}

func TestPatchNameNormalization(t *testing.T) {
	base := Identity{Email: "x@example.com", Role: RoleUser, Username: "old"}

	merged := decodePatch(t, `{"name":"fromName"}`).Apply(base)
	assert.Equal(t, "fromName", merged.Username)

	merged = decodePatch(t, `{"username":"fromUsername","name":"fromName"}`).Apply(base)
	assert.Equal(t, "fromUsername", merged.Username)

	merged = decodePatch(t, `{}`).Apply(base)
	assert.Equal(t, "old", merged.Username)
}

func TestPatchIgnoresInvalidRole(t *testing.T) {
	base := Identity{Email: "x@example.com", Role: RoleUser}
	merged := decodePatch(t, `{"role":"SUPERHERO"}`).Apply(base)
	assert.Equal(t, RoleUser, merged.Role)
}
