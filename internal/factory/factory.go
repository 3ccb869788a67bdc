// Package factory implements the client factory and credential refresh
// protocol from spec §4.2: look up credentials, refresh under an
// exclusive per-tenant advisory lock when the access token is expiring,
// and persist rotated tokens before constructing the connector client.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/store"
	"github.com/brightlane/ingestflow/internal/vault"
)

// RefreshResult is what a vendor OAuth refresh exchange returns.
// RefreshToken is empty when the vendor does not rotate it.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshFunc calls the vendor's OAuth refresh_token endpoint. Concrete
// connectors supply one per source (Canva rotates both tokens every
// call; Pipedrive only sometimes; Salesforce/Linear only rotate the
// access token).
type RefreshFunc func(ctx context.Context, creds domain.Credentials) (RefreshResult, error)

const refreshBuffer = 2 * time.Minute

// expiresAtKey is the per-(tenant,source) config key tracking the access
// token's expiry, read and updated inside the advisory-locked critical
// section.
func expiresAtKey(source domain.Source) string {
	return domain.SyncStateKey(source, "TOKEN", "EXPIRES_AT")
}

func advisoryLockKey(tenantID string, source domain.Source) string {
	return fmt.Sprintf("%s:%s:token_refresh", tenantID, source)
}

// Factory builds ready-to-use credentials for a (tenant, source),
// refreshing through the vault and a per-tenant Postgres advisory lock
// when the stored access token is within refreshBuffer of expiring.
type Factory struct {
	vault   *vault.Client
	configs map[string]*store.ConfigStore // tenantID -> tenant config store
}

func New(v *vault.Client, configs map[string]*store.ConfigStore) *Factory {
	return &Factory{vault: v, configs: configs}
}

// Resolve implements the five-step protocol in spec §4.2: look up the
// stored credentials, compare expiry to now+buffer, and — if expiring —
// acquire the advisory lock, re-read expiry inside it (so a concurrent
// refresher's write is observed before calling the vendor again), call
// the vendor only if still needed, and persist the result atomically
// with the updated expiry before releasing the lock.
func (f *Factory) Resolve(ctx context.Context, tenantID string, source domain.Source, refresh RefreshFunc) (domain.Credentials, error) {
	creds, err := f.load(ctx, tenantID, source)
	if err != nil {
		return domain.Credentials{}, err
	}

	if creds.ExpiresAt == nil || !creds.NeedsRefresh(time.Now(), refreshBuffer) {
		return creds, nil
	}

	cfgStore, ok := f.configs[tenantID]
	if !ok {
		return domain.Credentials{}, fmt.Errorf("no config store registered for tenant %s", tenantID)
	}

	var refreshed domain.Credentials
	txErr := cfgStore.WithTx(ctx, func(txCtx context.Context) error {
		if lockErr := cfgStore.AdvisoryLock(txCtx, advisoryLockKey(tenantID, source)); lockErr != nil {
			return lockErr
		}

		// Re-read inside the lock: another worker may have already
		// refreshed while we were waiting to acquire it.
		current, reloadErr := f.load(txCtx, tenantID, source)
		if reloadErr != nil {
			return reloadErr
		}
		if current.ExpiresAt == nil || !current.NeedsRefresh(time.Now(), refreshBuffer) {
			refreshed = current
			return nil
		}

		result, refreshErr := refresh(txCtx, current)
		if refreshErr != nil {
			if af, ok := cerrors.AsAuthFailed(refreshErr); ok {
				return af
			}
			// Timeouts/connection errors/5xx on the refresh exchange
			// are handed back to the worker pool as a rate-limited
			// retry rather than a terminal failure (spec §4.2).
			return &cerrors.RateLimitedError{Endpoint: string(source) + ":oauth-refresh", RetryAfter: 35 * time.Second}
		}

		if err := f.vault.PutAPIKey(txCtx, tenantID, accessTokenName(source), result.AccessToken); err != nil {
			return err
		}
		if result.RefreshToken != "" {
			if err := f.vault.PutAPIKey(txCtx, tenantID, refreshTokenName(source), result.RefreshToken); err != nil {
				return err
			}
			current.RefreshToken = result.RefreshToken
		}
		if err := cfgStore.Set(txCtx, expiresAtKey(source), result.ExpiresAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}

		current.AccessToken = result.AccessToken
		current.ExpiresAt = &result.ExpiresAt
		refreshed = current
		return nil
	})
	if txErr != nil {
		return domain.Credentials{}, txErr
	}
	return refreshed, nil
}

func accessTokenName(source domain.Source) string  { return string(source) + "_access_token" }
func refreshTokenName(source domain.Source) string { return string(source) + "_refresh_token" }

func (f *Factory) load(ctx context.Context, tenantID string, source domain.Source) (domain.Credentials, error) {
	accessToken, err := f.vault.GetAPIKey(ctx, tenantID, accessTokenName(source))
	if err != nil {
		return domain.Credentials{}, err
	}
	refreshToken, _ := f.vault.GetAPIKey(ctx, tenantID, refreshTokenName(source))

	creds := domain.Credentials{
		TenantID:     tenantID,
		Source:       source,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	cfgStore, ok := f.configs[tenantID]
	if !ok {
		return creds, nil
	}
	raw, found, err := cfgStore.Get(ctx, expiresAtKey(source))
	if err != nil {
		return domain.Credentials{}, err
	}
	if found {
		t, parseErr := time.Parse(time.RFC3339Nano, raw)
		if parseErr == nil {
			creds.ExpiresAt = &t
		}
	}
	return creds, nil
}
