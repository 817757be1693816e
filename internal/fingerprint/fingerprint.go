// Package fingerprint derives the stable identity hashes of a normalized
// posting. SHA-256 is deliberate: the fingerprint is a dedup identity and
// must not collide in practice, so a checksum is not enough.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jobsift/jobsift/internal/normalizer"
)

// Job hashes the ordered identity tuple (normalized title, canonical company,
// canonical location, compensation bucket). Identical tuples always yield
// identical fingerprints; the fingerprint is never recomputed once a tracked
// job has been created with it.
func Job(view normalizer.View, companyID, locationID snowflake.ID) string {
	tuple := strings.Join([]string{
		view.Title,
		companyID.String(),
		locationID.String(),
		view.Comp.Key(),
	}, "|")
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

// Description hashes the normalized description snippet. Used only as a
// secondary fuzzy-match signal, never for identity.
func Description(snippet string) string {
	if snippet == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])
}
