package auth

import (
	"errors"
	"testing"
	"time"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier("tok-alice=alice, tok-bob=bob, malformed")

	id, err := v.Verify("tok-alice")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "alice" {
		t.Fatalf("Verify() = %+v, want alice", id)
	}
	if _, err := v.Verify("nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown token: err = %v, want ErrInvalidToken", err)
	}
	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (malformed pair skipped)", v.Len())
	}
}

func TestHMACIssueAndVerify(t *testing.T) {
	v := NewHMACVerifier("secret")

	token, err := v.Issue(Identity{UserID: "u-1", UserName: "Sam"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "u-1" || id.UserName != "Sam" {
		t.Fatalf("Verify() = %+v", id)
	}
}

func TestHMACRejectsTamperedToken(t *testing.T) {
	v := NewHMACVerifier("secret")
	token, _ := v.Issue(Identity{UserID: "u-1"}, time.Hour)

	if _, err := v.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered sig: err = %v, want ErrInvalidToken", err)
	}
	other := NewHMACVerifier("different-secret")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
}

func TestHMACRejectsExpiredToken(t *testing.T) {
	v := NewHMACVerifier("secret")
	token, _ := v.Issue(Identity{UserID: "u-1"}, time.Minute)

	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestDevVerifier(t *testing.T) {
	v := DevVerifier{}
	id, err := v.Verify("anything")
	if err != nil || id.UserID != "dev-user" {
		t.Fatalf("Verify() = %+v, %v", id, err)
	}
	if _, err := v.Verify("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("blank token: err = %v, want ErrInvalidToken", err)
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig("", "").(DevVerifier); !ok {
		t.Fatal("no config should yield the dev verifier")
	}

	v := FromConfig("secret", "tok=ops")
	if _, err := v.Verify("tok"); err != nil {
		t.Fatalf("static token via chain: error = %v", err)
	}
	signer := NewHMACVerifier("secret")
	token, _ := signer.Issue(Identity{UserID: "u-1"}, time.Hour)
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("hmac token via chain: error = %v", err)
	}
	if _, err := v.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("configured chain must not fall back to dev: err = %v", err)
	}
}
