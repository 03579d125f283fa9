package auth

import (
	"strings"
	"testing"
)

func TestHashAdminToken(t *testing.T) {
	hash, err := HashAdminToken("hunter2")
	if err != nil {
		t.Fatalf("HashAdminToken: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash = %q, want bcrypt format", hash)
	}
	if hash == "hunter2" {
		t.Error("token stored in the clear")
	}
}

func TestHashAdminToken_Empty(t *testing.T) {
	if _, err := HashAdminToken(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestVerifyAdminToken(t *testing.T) {
	hash, err := HashAdminToken("correct-token")
	if err != nil {
		t.Fatalf("HashAdminToken: %v", err)
	}

	if !VerifyAdminToken(hash, "correct-token") {
		t.Error("correct token rejected")
	}
	if VerifyAdminToken(hash, "wrong-token") {
		t.Error("wrong token accepted")
	}
	if VerifyAdminToken("", "anything") {
		t.Error("empty hash accepted a token")
	}
	if VerifyAdminToken(hash, "") {
		t.Error("empty token accepted")
	}
}
