// chain.go implements hash chaining over audit entries. Each entry carries
// the SHA-256 hash of its predecessor's canonical JSON form, so rewriting,
// reordering, or deleting an interior entry breaks every later link. The
// canonical form uses a fixed field order and RFC 3339 nanosecond timestamps;
// Metadata is excluded because map iteration order would make the hash
// unstable across marshalling.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// canonicalEntry is the stable projection of an Entry that gets hashed.
type canonicalEntry struct {
	ID            string     `json:"id"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	Action        string     `json:"action"`
	User          string     `json:"user"`
	PreviousValue string     `json:"previous_value"`
	NewValue      string     `json:"new_value"`
	Timestamp     string     `json:"timestamp"`
	PreviousHash  string     `json:"previous_hash"`
}

// HashEntry computes the canonical SHA-256 hash of an entry.
func HashEntry(e Entry) string {
	c := canonicalEntry{
		ID:            e.ID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Action:        e.Action,
		User:          e.User,
		PreviousValue: e.PreviousValue,
		NewValue:      e.NewValue,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		PreviousHash:  e.PreviousHash,
	}
	// Marshalling a flat struct of strings cannot fail.
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks the hash links across a most-recent-first entry
// sequence: every entry's PreviousHash must equal the canonical hash of the
// entry logged before it. The oldest retained entry's PreviousHash is not
// checked — its predecessor may have been evicted by the retention cap — so
// verification covers exactly the retained window.
//
// Returns nil when the chain is intact, or an error naming the first entry
// (most-recent-first index) whose link is broken.
func VerifyChain(entries []Entry) error {
	for i := len(entries) - 2; i >= 0; i-- {
		want := HashEntry(entries[i+1])
		if entries[i].PreviousHash != want {
			return fmt.Errorf("audit: chain broken at entry %d (id %s): previous hash mismatch", i, entries[i].ID)
		}
	}
	return nil
}
