package oracle

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSignature = errors.New("invalid oracle signature")

// CanonicalTuple is the byte string the oracle signs for a fulfillment:
// newline-joined request id, location, parameter, observed value and unix
// timestamp. Both sides must build it identically.
func CanonicalTuple(requestID, location, parameter string, value int64, ts time.Time) []byte {
	parts := []string{
		requestID,
		location,
		parameter,
		strconv.FormatInt(value, 10),
		strconv.FormatInt(ts.Unix(), 10),
	}
	return []byte(strings.Join(parts, "\n"))
}

// ParsePublicKey decodes a hex-encoded DER SPKI P-256 public key.
func ParsePublicKey(hexKey string) (*ecdsa.PublicKey, error) {
	der, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ECDSA")
	}
	if ecPub.Curve != elliptic.P256() {
		return nil, errors.New("public key curve is not P-256")
	}
	return ecPub, nil
}

// VerifyP256 checks an ASN.1 DER signature over sha256 of the message.
func VerifyP256(pub *ecdsa.PublicKey, message, sig []byte) error {
	digest := sha256.Sum256(message)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}
