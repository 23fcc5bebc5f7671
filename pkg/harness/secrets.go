package harness

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/nacl/secretbox"
)

// SecretsProvider resolves a reference string (e.g. "env:NEO4J_PASSWORD")
// into a value at execute time. Handlers never see a raw ExecutionContext
// field carrying a secret; they call Resolve themselves against the
// reference the caller supplied.
type SecretsProvider interface {
	Resolve(ref string) (string, error)
}

// EnvSecretsProvider resolves "env:VAR_NAME" references against the
// process environment.
type EnvSecretsProvider struct{}

func (EnvSecretsProvider) Resolve(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "env:")
	if !ok {
		return "", fmt.Errorf("harness: env provider cannot resolve ref %q", ref)
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("harness: environment variable %q is not set", name)
	}
	return v, nil
}

// CompositeSecretsProvider dispatches on a reference's scheme prefix
// ("env:", "jwt:", ...) to the provider registered for it.
type CompositeSecretsProvider struct {
	mu        sync.RWMutex
	providers map[string]SecretsProvider
}

// NewCompositeSecretsProvider returns a provider with "env:" wired to
// EnvSecretsProvider; additional schemes can be registered via Register.
func NewCompositeSecretsProvider() *CompositeSecretsProvider {
	return &CompositeSecretsProvider{
		providers: map[string]SecretsProvider{"env": EnvSecretsProvider{}},
	}
}

// Register wires scheme (without the trailing colon) to provider.
func (c *CompositeSecretsProvider) Register(scheme string, provider SecretsProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[scheme] = provider
}

func (c *CompositeSecretsProvider) Resolve(ref string) (string, error) {
	scheme, _, ok := strings.Cut(ref, ":")
	if !ok {
		return "", fmt.Errorf("harness: secret ref %q has no scheme", ref)
	}
	c.mu.RLock()
	p, ok := c.providers[scheme]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("harness: no secrets provider registered for scheme %q", scheme)
	}
	return p.Resolve(ref)
}

// keyringEntry is one JWT stored in an encrypted local keyring file.
type keyringEntry struct {
	Token string `json:"token"`
	Claim string `json:"claim"`
}

// JWTSecretsProvider resolves "jwt:<keyring-entry>" references against a
// nacl/secretbox-encrypted keyring file: each entry holds a signed JWT and
// the name of the claim to extract. The provider verifies signature and
// expiry and returns only the requested claim value, never the raw token.
type JWTSecretsProvider struct {
	keyFunc jwt.Keyfunc
	entries map[string]keyringEntry
}

// NewJWTSecretsProvider decrypts keyringPath (a secretbox-sealed box: a
// 24-byte nonce followed by ciphertext) with key, parses the resulting
// JSON map of keyring-entry-name -> {token, claim}, and returns a provider
// that verifies each JWT against keyFunc before extracting its claim.
func NewJWTSecretsProvider(keyringPath string, key *[32]byte, keyFunc jwt.Keyfunc) (*JWTSecretsProvider, error) {
	sealed, err := os.ReadFile(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("harness: read keyring: %w", err)
	}
	if len(sealed) < 24 {
		return nil, errors.New("harness: keyring file too short to contain a nonce")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, errors.New("harness: keyring decryption failed (wrong key or corrupt file)")
	}

	var entries map[string]keyringEntry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("harness: parse keyring: %w", err)
	}
	return &JWTSecretsProvider{keyFunc: keyFunc, entries: entries}, nil
}

func (p *JWTSecretsProvider) Resolve(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "jwt:")
	if !ok {
		return "", fmt.Errorf("harness: jwt provider cannot resolve ref %q", ref)
	}
	entry, ok := p.entries[name]
	if !ok {
		return "", fmt.Errorf("harness: keyring has no entry %q", name)
	}

	token, err := jwt.Parse(entry.Token, p.keyFunc, jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"}))
	if err != nil {
		return "", fmt.Errorf("harness: keyring entry %q: invalid token: %w", name, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("harness: keyring entry %q: token not valid", name)
	}

	v, ok := claims[entry.Claim]
	if !ok {
		return "", fmt.Errorf("harness: keyring entry %q: claim %q not present", name, entry.Claim)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("harness: keyring entry %q: claim %q is not a string", name, entry.Claim)
	}
	return s, nil
}

// SealKeyring encrypts plaintext keyring JSON with key, prefixing a fresh
// random nonce, for use by whatever out-of-band tooling provisions a
// JWTSecretsProvider's backing file.
func SealKeyring(plaintext []byte, key *[32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("harness: generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, key)
	return sealed, nil
}
