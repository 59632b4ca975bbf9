package oracle

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

func newSigner(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return key, hex.EncodeToString(der)
}

func signTuple(t *testing.T, key *ecdsa.PrivateKey, tuple []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(tuple)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestCanonicalTuple(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := CanonicalTuple("req-1", "52.52,13.40", "temperature", 41, ts)
	want := "req-1\n52.52,13.40\ntemperature\n41\n" + "1772366400"
	if string(got) != want {
		t.Fatalf("tuple=%q want=%q", got, want)
	}
}

func TestVerifyP256_RoundTrip(t *testing.T) {
	key, hexKey := newSigner(t)
	pub, err := ParsePublicKey(hexKey)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	tuple := CanonicalTuple("req-1", "52.52,13.40", "temperature", 41, time.Now())
	sig := signTuple(t, key, tuple)
	if err := VerifyP256(pub, tuple, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyP256_TamperedTuple(t *testing.T) {
	key, hexKey := newSigner(t)
	pub, _ := ParsePublicKey(hexKey)
	ts := time.Now()
	sig := signTuple(t, key, CanonicalTuple("req-1", "52.52,13.40", "temperature", 41, ts))
	tampered := CanonicalTuple("req-1", "52.52,13.40", "temperature", 99, ts)
	if err := VerifyP256(pub, tampered, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err=%v want=ErrInvalidSignature", err)
	}
}

func TestVerifyP256_ForeignKey(t *testing.T) {
	key, _ := newSigner(t)
	_, otherHex := newSigner(t)
	otherPub, _ := ParsePublicKey(otherHex)
	tuple := CanonicalTuple("req-1", "52.52,13.40", "temperature", 41, time.Now())
	sig := signTuple(t, key, tuple)
	if err := VerifyP256(otherPub, tuple, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err=%v want=ErrInvalidSignature", err)
	}
}

func TestParsePublicKey_Rejects(t *testing.T) {
	if _, err := ParsePublicKey("not-hex"); err == nil {
		t.Fatalf("non-hex key accepted")
	}
	if _, err := ParsePublicKey("deadbeef"); err == nil {
		t.Fatalf("garbage DER accepted")
	}
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate p384: %v", err)
	}
	der, _ := x509.MarshalPKIXPublicKey(&p384.PublicKey)
	if _, err := ParsePublicKey(hex.EncodeToString(der)); err == nil {
		t.Fatalf("P-384 key accepted, want P-256 only")
	}
}
