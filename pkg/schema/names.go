package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	maxDomainPart = 20
	maxTypePart   = 18
)

// TableName returns the dynamic table for a (domain, content type) pair:
// "{domain}_{contentType}_{hash8}". Both parts are reduced to [a-z0-9_] and
// truncated; the hash is taken over the normalized inputs so distinct pairs
// never collide after sanitising. The result is a valid unquoted identifier
// in PostgreSQL and SQLite.
func TableName(domain, contentType string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if domain == "" {
		domain = "general"
	}
	if contentType == "" {
		contentType = "document"
	}

	sum := sha256.Sum256([]byte(domain + "\x00" + contentType))
	hash8 := hex.EncodeToString(sum[:])[:8]

	return identPart(domain, maxDomainPart, "general") + "_" +
		identPart(contentType, maxTypePart, "document") + "_" + hash8
}

// identPart keeps [a-z0-9], maps every other run of runes to one "_" and
// ensures the part starts with a letter.
func identPart(s string, limit int, fallback string) string {
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = fallback
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "t" + out
	}
	if len(out) > limit {
		out = strings.TrimRight(out[:limit], "_")
	}
	return out
}

// ValidIdent reports whether name is safe to interpolate into DDL.
func ValidIdent(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
