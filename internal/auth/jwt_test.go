package auth

import (
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	j := JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour}
	token, expiresAt, err := j.Sign("alice", []string{RoleAdmin})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expiresAt=%s is not in the future", expiresAt)
	}
	ident, err := j.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ident.Subject != "alice" {
		t.Fatalf("subject=%s want=alice", ident.Subject)
	}
	if !ident.HasRole(RoleAdmin) {
		t.Fatalf("admin role missing: %v", ident.Roles)
	}
	if ident.HasRole("operator") {
		t.Fatalf("unexpected role granted")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	j := JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour}
	token, _, err := j.Sign("alice", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	other := JWT{Secret: []byte("different-secret")}
	if _, err := other.Verify(token); err == nil {
		t.Fatalf("token verified under wrong secret")
	}
}

func TestVerify_Expired(t *testing.T) {
	j := JWT{Secret: []byte("test-secret"), TokenTTL: -2 * time.Minute}
	token, _, err := j.Sign("alice", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := j.Verify(token); err == nil {
		t.Fatalf("expired token verified")
	}
}

func TestVerify_Garbage(t *testing.T) {
	j := JWT{Secret: []byte("test-secret")}
	if _, err := j.Verify("not.a.token"); err == nil {
		t.Fatalf("garbage token verified")
	}
}
