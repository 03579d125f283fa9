package audit_test

import (
	"testing"
	"time"

	"github.com/meddev-qms/meddev-qms/internal/audit"
)

func chainEntry(id, prevHash string) audit.Entry {
	return audit.Entry{
		ID:           id,
		EntityType:   audit.EntityCAPA,
		EntityID:     "capa-1",
		Action:       "capa.updated",
		User:         "qa.lead",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		PreviousHash: prevHash,
	}
}

func TestHashEntry_Deterministic(t *testing.T) {
	e := chainEntry("e-1", "")
	if audit.HashEntry(e) != audit.HashEntry(e) {
		t.Error("hashing the same entry twice gave different results")
	}
	if len(audit.HashEntry(e)) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(audit.HashEntry(e)))
	}
}

func TestHashEntry_SensitiveToFields(t *testing.T) {
	a := chainEntry("e-1", "")
	b := a
	b.NewValue = "changed"
	if audit.HashEntry(a) == audit.HashEntry(b) {
		t.Error("hash unchanged after mutating new_value")
	}
}

func TestHashEntry_MetadataExcluded(t *testing.T) {
	a := chainEntry("e-1", "")
	b := a
	b.Metadata = map[string]any{"k": "v"}
	if audit.HashEntry(a) != audit.HashEntry(b) {
		t.Error("metadata must not affect the canonical hash")
	}
}

func TestVerifyChain_Intact(t *testing.T) {
	// Build a three-link chain, most-recent-first.
	oldest := chainEntry("e-1", "")
	middle := chainEntry("e-2", audit.HashEntry(oldest))
	newest := chainEntry("e-3", audit.HashEntry(middle))

	if err := audit.VerifyChain([]audit.Entry{newest, middle, oldest}); err != nil {
		t.Errorf("VerifyChain on intact chain: %v", err)
	}
	if err := audit.VerifyChain(nil); err != nil {
		t.Errorf("VerifyChain on empty chain: %v", err)
	}
	if err := audit.VerifyChain([]audit.Entry{oldest}); err != nil {
		t.Errorf("VerifyChain on single entry: %v", err)
	}
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	oldest := chainEntry("e-1", "")
	middle := chainEntry("e-2", audit.HashEntry(oldest))
	newest := chainEntry("e-3", audit.HashEntry(middle))

	// Rewriting an interior entry breaks the link above it.
	middle.User = "attacker"
	if err := audit.VerifyChain([]audit.Entry{newest, middle, oldest}); err == nil {
		t.Error("VerifyChain missed a rewritten interior entry")
	}
}

func TestVerifyChain_OldestLinkUnchecked(t *testing.T) {
	// The oldest retained entry may point at an evicted predecessor; its own
	// PreviousHash is deliberately not checked.
	oldest := chainEntry("e-5", "hash-of-evicted-entry")
	newest := chainEntry("e-6", audit.HashEntry(oldest))
	if err := audit.VerifyChain([]audit.Entry{newest, oldest}); err != nil {
		t.Errorf("VerifyChain rejected truncated-but-valid chain: %v", err)
	}
}
