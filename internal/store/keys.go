package store

import "tourbook/sessiond/internal/models"

// Key namespace shared by the session manager and the expiry janitor.
// Privileged roles (ADMIN, STAFF) carry a role suffix; USER and COMPANY
// share the legacy unprefixed keys for compatibility with readers that
// predate role prefixing.
const (
	KeyUser        = "user"
	KeyToken       = "token"
	KeyRememberMe  = "rememberMe"
	KeyTokenExpiry = "tokenExpiry"
	KeyAccessToken = "accessToken"
	KeyChatHistory = "chat_history"
)

func UserKey(role models.Role) string {
	if role.Privileged() {
		return KeyUser + "_" + string(role)
	}
	return KeyUser
}

func TokenKey(role models.Role) string {
	if role.Privileged() {
		return KeyToken + "_" + string(role)
	}
	return KeyToken
}

// SessionKeys lists every key that belongs to one role namespace, in both
// tiers, excluding shared housekeeping keys.
func SessionKeys(role models.Role) []string {
	return []string{UserKey(role), TokenKey(role)}
}

// HousekeepingKeys are shared across namespaces and removed on any logout.
func HousekeepingKeys() []string {
	return []string{KeyRememberMe, KeyTokenExpiry, KeyAccessToken}
}
