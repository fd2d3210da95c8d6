package cortex

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator sets credentials on an outgoing Snowflake request.
type Authenticator interface {
	Authorize(req *http.Request) error
}

// TokenAuth authenticates with a programmatic access token (or OAuth token).
type TokenAuth struct {
	Token     string
	TokenType string // defaults to PROGRAMMATIC_ACCESS_TOKEN
}

// Authorize implements Authenticator.
func (a TokenAuth) Authorize(req *http.Request) error {
	if a.Token == "" {
		return fmt.Errorf("empty snowflake token")
	}
	tokenType := a.TokenType
	if tokenType == "" {
		tokenType = "PROGRAMMATIC_ACCESS_TOKEN"
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", tokenType)
	return nil
}

const (
	keyPairTokenLifetime = 59 * time.Minute
	keyPairRefreshMargin = 5 * time.Minute
)

// KeyPairAuth signs short-lived RS256 JWTs with the user's private key.
// Tokens are cached and re-signed shortly before they expire.
type KeyPairAuth struct {
	qualifiedUser string
	fingerprint   string
	key           *rsa.PrivateKey
	now           func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewKeyPairAuth creates a KeyPairAuth for account/user.
func NewKeyPairAuth(account, user string, key *rsa.PrivateKey) (*KeyPairAuth, error) {
	if account == "" || user == "" {
		return nil, fmt.Errorf("account and user are required for key-pair auth")
	}
	fp, err := PublicKeyFingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPairAuth{
		qualifiedUser: accountLocator(account) + "." + strings.ToUpper(user),
		fingerprint:   fp,
		key:           key,
		now:           time.Now,
	}, nil
}

// Authorize implements Authenticator.
func (a *KeyPairAuth) Authorize(req *http.Request) error {
	token, err := a.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", "KEYPAIR_JWT")
	return nil
}

// Token returns a valid JWT, signing a new one when the cached token is near expiry.
func (a *KeyPairAuth) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	if a.token != "" && now.Add(keyPairRefreshMargin).Before(a.expires) {
		return a.token, nil
	}

	expires := now.Add(keyPairTokenLifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    a.qualifiedUser + "." + a.fingerprint,
		Subject:   a.qualifiedUser,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign key-pair JWT: %w", err)
	}

	a.token = signed
	a.expires = expires
	return signed, nil
}

// PublicKeyFingerprint returns "SHA256:<base64 digest of the DER public key>",
// the format Snowflake stores as RSA_PUBLIC_KEY_FP.
func PublicKeyFingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// LoadPrivateKey reads an unencrypted PKCS#8 or PKCS#1 PEM private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey parses an unencrypted PKCS#8 or PKCS#1 PEM private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#8 key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// accountLocator strips any region/cloud suffix and upper-cases the account
// identifier, as required in key-pair JWT claims.
func accountLocator(account string) string {
	if i := strings.Index(account, "."); i >= 0 {
		account = account[:i]
	}
	return strings.ToUpper(account)
}
