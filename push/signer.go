package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var signingMethod = jwt.SigningMethodES256

// Credentials identify the APNs provider key.
type Credentials struct {
	KeyID      string // kid header
	TeamID     string // iss claim
	PrivateKey string // base64 PKCS8, optionally PEM-wrapped
}

// Configured reports whether a signing key is present.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.PrivateKey) != ""
}

// Signer builds APNs provider tokens:
//
//	header:  {"alg":"ES256","kid":<key id>}
//	payload: {"iss":<team id>,"iat":<unix seconds>}
//
// The key is decoded on every Sign so rotated material is picked up
// without a restart.
type Signer struct {
	creds Credentials
}

// NewSigner returns ErrGatewayUnconfigured when no key is set.
func NewSigner(creds Credentials) (*Signer, error) {
	if !creds.Configured() {
		return nil, ErrGatewayUnconfigured
	}
	if creds.KeyID == "" || creds.TeamID == "" {
		return nil, fmt.Errorf("%w: key id and team id are required", ErrInvalidKey)
	}
	return &Signer{creds: creds}, nil
}

// Sign returns a compact-serialized ES256 token issued at now.
func (s *Signer) Sign(now time.Time) (string, error) {
	key, err := parsePrivateKey(s.creds.PrivateKey)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(signingMethod, jwt.MapClaims{
		"iss": s.creds.TeamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = s.creds.KeyID
	delete(token.Header, "typ")

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("error signing provider token: %w", err)
	}
	return signed, nil
}

func parsePrivateKey(encoded string) (*ecdsa.PrivateKey, error) {
	raw := []byte(strings.TrimSpace(encoded))
	if !strings.HasPrefix(string(raw), "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: error decoding base64: %v", ErrInvalidKey, err)
		}
		raw = decoded
	}
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}

	parsed, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing PKCS8: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected ECDSA key, got %T", ErrInvalidKey, parsed)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected P-256 curve, got %s", ErrInvalidKey, key.Curve.Params().Name)
	}
	return key, nil
}
