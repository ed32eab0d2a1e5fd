package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IdentityVersion tags the key derivation rule. Bump it whenever the rule
// below changes so old keys are never mistaken for new ones.
const IdentityVersion = "v1"

// IdentityKey derives the stable, source-independent key for a row.
//
// Rule (v1): scan the configured identity field list in order; the first
// field with a non-empty value wins. The value is normalized (trimmed,
// lowercased, inner whitespace collapsed) and hashed together with the
// version tag and the field name:
//
//	v1:hex(sha256("v1|<field>|<normalized value>"))[:32]
//
// Including the field name keeps a DOI-derived key from ever colliding
// with a title-derived key for a different item.
//
// Returns "" when no identity field has a value; such rows are dropped.
func IdentityKey(row Row, fields []string) string {
	for _, f := range fields {
		v := canonicalize(row.canonicalValue(f))
		if v == "" {
			continue
		}
		sum := sha256.Sum256([]byte(IdentityVersion + "|" + f + "|" + v))
		return IdentityVersion + ":" + hex.EncodeToString(sum[:16])
	}
	return ""
}

func canonicalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}
