// Package auth verifies bearer tokens and resolves them to a user
// identity. Three verifiers exist: a static token map for operator
// accounts, HMAC-signed tokens for issued sessions, and a permissive
// dev verifier for local setups with no secret configured.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Identity is the resolved caller.
type Identity struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// StaticVerifier maps fixed tokens to identities. Configured from
// AUTH_STATIC_TOKENS as "token=userID" pairs.
type StaticVerifier struct {
	tokens map[string]Identity
}

// NewStaticVerifier parses a comma-separated "token=userID" list.
// Malformed pairs are skipped.
func NewStaticVerifier(spec string) *StaticVerifier {
	tokens := make(map[string]Identity)
	for _, pair := range strings.Split(spec, ",") {
		token, userID, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || userID == "" {
			continue
		}
		tokens[token] = Identity{UserID: userID, UserName: userID}
	}
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(token string) (Identity, error) {
	id, ok := v.tokens[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

func (v *StaticVerifier) Len() int { return len(v.tokens) }

type hmacClaims struct {
	UserID   string `json:"uid"`
	UserName string `json:"name"`
	Expires  int64  `json:"exp"`
}

// HMACVerifier issues and verifies self-contained signed tokens of the
// form base64(claims).base64(hmac-sha256).
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for the identity, valid for ttl.
func (v *HMACVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	claims := hmacClaims{
		UserID:   id.UserID,
		UserName: id.UserName,
		Expires:  v.now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + v.sign(encoded), nil
}

func (v *HMACVerifier) Verify(token string) (Identity, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(v.sign(encoded)), []byte(sig)) {
		return Identity{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	var claims hmacClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Identity{}, ErrInvalidToken
	}
	if claims.UserID == "" || v.now().Unix() >= claims.Expires {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, UserName: claims.UserName}, nil
}

func (v *HMACVerifier) sign(encoded string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// DevVerifier accepts any non-empty token and resolves it to a fixed
// development identity. Only wired when neither a secret nor static
// tokens are configured.
type DevVerifier struct{}

func (DevVerifier) Verify(token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: "dev-user", UserName: "Developer"}, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(token string) (Identity, error) {
	for _, v := range c {
		if id, err := v.Verify(token); err == nil {
			return id, nil
		}
	}
	return Identity{}, ErrInvalidToken
}

// FromConfig builds the verifier stack: static tokens and HMAC when
// configured, dev fallback when nothing is.
func FromConfig(hmacSecret, staticTokens string) Verifier {
	var chain Chain
	if sv := NewStaticVerifier(staticTokens); sv.Len() > 0 {
		chain = append(chain, sv)
	}
	if hmacSecret != "" {
		chain = append(chain, NewHMACVerifier(hmacSecret))
	}
	if len(chain) == 0 {
		return DevVerifier{}
	}
	return chain
}
