package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough to tell runs apart in logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	ConfigHash Hash
	CohortHash Hash
)

func (h ConfigHash) String() string { return Hash(h).String() }
func (h CohortHash) String() string { return Hash(h).String() }

// ComputeConfigHash fingerprints a set of policy knobs independent of map order
func ComputeConfigHash(knobs map[string]interface{}) ConfigHash {
	keys := make([]string, 0, len(knobs))
	for k := range knobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString("=")
		data.WriteString(fmt.Sprintf("%v", knobs[key]))
		data.WriteString(";")
	}

	return ConfigHash(NewHash([]byte(data.String())))
}

// ComputeCohortHash fingerprints an ordered subject list. Order matters: the cube,
// subject and label arrays are index-aligned, so a reordering is a different cohort.
func ComputeCohortHash(subjectIDs []string) CohortHash {
	var data strings.Builder
	for _, id := range subjectIDs {
		data.WriteString(id)
		data.WriteString("\n")
	}
	return CohortHash(NewHash([]byte(data.String())))
}
