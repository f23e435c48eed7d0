// Package secrets resolves the CRON_SECRET scheduled jobs are signed
// with (spec.md §6) and verifies the X-Cron-Signature header on
// incoming job calls. Grounded on shared/security/vault.go's
// VaultClient/SecretsManager idiom (KV v2 read, 5-minute in-memory
// cache); when config.VaultConfig.Addr is empty it falls back to a
// plain environment variable, the same fallback vault.go's
// LoadFromVaultOrEnv implements.
package secrets

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/jeevibe/ale/internal/config"

	"github.com/hashicorp/vault/api"
)

const cacheTTL = 5 * time.Minute

// Resolver resolves the cron-signing secret, caching it in memory for
// cacheTTL the way shared/security/vault.go's SecretsManager caches
// KV reads.
type Resolver struct {
	cfg    config.VaultConfig
	client *api.Client

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// New constructs a Resolver. If cfg.Addr is empty the Vault client is
// never created and Resolve always falls back to CRON_SECRET.
func New(cfg config.VaultConfig) (*Resolver, error) {
	r := &Resolver{cfg: cfg}
	if cfg.Addr == "" {
		return r, nil
	}

	vc := api.DefaultConfig()
	vc.Address = cfg.Addr
	client, err := api.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	r.client = client
	return r, nil
}

// Resolve returns the current cron-signing secret, preferring Vault
// (KV v2, "data" envelope) and falling back to the CRON_SECRET
// environment variable, either because Vault is unconfigured or the
// read failed.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.cached != "" && time.Now().Before(r.expiresAt) {
		defer r.mu.Unlock()
		return r.cached, nil
	}
	r.mu.Unlock()

	if r.client != nil {
		if secret, err := r.readVault(ctx); err == nil {
			r.mu.Lock()
			r.cached = secret
			r.expiresAt = time.Now().Add(cacheTTL)
			r.mu.Unlock()
			return secret, nil
		}
	}

	if env := os.Getenv("CRON_SECRET"); env != "" {
		return env, nil
	}

	return "", fmt.Errorf("cron secret not available from Vault or CRON_SECRET")
}

func (r *Resolver) readVault(ctx context.Context) (string, error) {
	fullPath := path.Join(r.cfg.SecretPath)
	secret, err := r.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found at path: %s", fullPath)
	}

	data, _ := secret.Data["data"].(map[string]interface{})
	if data == nil {
		data = secret.Data // KV v1 fallback
	}
	value, ok := data["cron_secret"].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("cron_secret key not found at path: %s", fullPath)
	}
	return value, nil
}

// Sign computes the HMAC-SHA256 signature an external cron caller
// attaches as X-Cron-Signature over the raw request body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig matches the HMAC-SHA256 of body under
// secret, using a constant-time comparison to avoid leaking the
// correct signature through response-timing side channels.
func Verify(secret string, body []byte, sig string) bool {
	want := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(want), []byte(sig)) == 1
}
