package launch

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	compactIdentity   = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	canonicalIdentity = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// NormalizeIdentity accepts a 32 hex digit identity, with or without the
// canonical hyphens, and returns it in lowercase hyphenated form
func NormalizeIdentity(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	if compact := strings.ReplaceAll(trimmed, "-", ""); compactIdentity.MatchString(compact) {
		c := strings.ToLower(compact)
		return c[0:8] + "-" + c[8:12] + "-" + c[12:16] + "-" + c[16:20] + "-" + c[20:], true
	}

	if canonicalIdentity.MatchString(trimmed) {
		return strings.ToLower(trimmed), true
	}
	return "", false
}

// DeriveIdentity returns the stable offline identity of a username
func DeriveIdentity(username string) string {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+username)).String()
}

// ResolveIdentity normalizes raw, falling back to the derived identity
func ResolveIdentity(raw, username string) string {
	if id, ok := NormalizeIdentity(raw); ok {
		return id
	}
	return DeriveIdentity(username)
}
