// Package vault implements the credentials vault client from spec §6:
// SecureString, KMS-encrypted secrets addressed by the
// "/<tenant>/api-key/<NAME>", "/<tenant>/signing-secret/<source>", and
// "/<tenant>/db-credential/<name>" key conventions, with TTL caching for
// OAuth tokens and immediate invalidation on write.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/brightlane/ingestflow/internal/cache"
)

// SecretBackend is the minimal surface the vault client needs from Azure
// Key Vault, narrowed for testability (fakes implement this directly
// instead of standing up a live vault).
type SecretBackend interface {
	SetSecret(ctx context.Context, name string, value string) error
	GetSecret(ctx context.Context, name string) (string, error)
}

// azureBackend adapts azsecrets.Client to SecretBackend.
type azureBackend struct {
	client *azsecrets.Client
}

func (b *azureBackend) SetSecret(ctx context.Context, name, value string) error {
	_, err := b.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{Value: &value}, nil)
	return err
}

func (b *azureBackend) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := b.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", err
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %q has no value", name)
	}
	return *resp.Value, nil
}

// NewAzureBackend builds a SecretBackend against a live Azure Key Vault
// using the ambient managed-identity / environment credential chain.
func NewAzureBackend(vaultURL string) (SecretBackend, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azsecrets client: %w", err)
	}
	return &azureBackend{client: client}, nil
}

const defaultTokenTTL = time.Hour

// Client is the credentials vault client every connector factory goes
// through. It never exposes raw secrets without going through the
// well-known key conventions, and caches OAuth-shaped lookups with the
// default 1h TTL from spec §6.
type Client struct {
	backend SecretBackend
	tokens  *cache.TokenCache
}

func New(backend SecretBackend) *Client {
	return &Client{
		backend: backend,
		tokens:  cache.NewTokenCache(cache.CacheConfig{DefaultTTL: defaultTokenTTL, MaxSize: 50000}),
	}
}

func apiKeyPath(tenantID, name string) string {
	return fmt.Sprintf("/%s/api-key/%s", tenantID, name)
}

func signingSecretPath(tenantID, source string) string {
	return fmt.Sprintf("/%s/signing-secret/%s", tenantID, source)
}

func dbCredentialPath(tenantID, name string) string {
	return fmt.Sprintf("/%s/db-credential/%s", tenantID, name)
}

// azureSecretName collapses a vault path into the name shape Azure Key
// Vault secret identifiers allow (alphanumeric and dashes only).
func azureSecretName(path string) string {
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			out = append(out, c)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

// GetAPIKey fetches a bearer/API key for (tenant, name), checking the
// token cache first.
func (c *Client) GetAPIKey(ctx context.Context, tenantID, name string) (string, error) {
	path := apiKeyPath(tenantID, name)
	if cached, ok := c.tokens.GetToken(path); ok {
		return cached, nil
	}
	value, err := c.backend.GetSecret(ctx, azureSecretName(path))
	if err != nil {
		return "", fmt.Errorf("get api key %s: %w", path, err)
	}
	c.tokens.SetToken(path, value, defaultTokenTTL)
	return value, nil
}

// PutAPIKey stores a bearer/API key and invalidates any cached copy
// immediately, per spec §6's "immediate invalidation on write".
func (c *Client) PutAPIKey(ctx context.Context, tenantID, name, value string) error {
	path := apiKeyPath(tenantID, name)
	if err := c.backend.SetSecret(ctx, azureSecretName(path), value); err != nil {
		return fmt.Errorf("put api key %s: %w", path, err)
	}
	c.tokens.InvalidateToken(path)
	c.tokens.SetToken(path, value, defaultTokenTTL)
	return nil
}

// GetSigningSecret fetches an HMAC signing secret for (tenant, source).
func (c *Client) GetSigningSecret(ctx context.Context, tenantID, source string) (string, error) {
	path := signingSecretPath(tenantID, source)
	return c.backend.GetSecret(ctx, azureSecretName(path))
}

// GetDBCredential fetches a per-tenant database connection string.
func (c *Client) GetDBCredential(ctx context.Context, tenantID, name string) (string, error) {
	path := dbCredentialPath(tenantID, name)
	return c.backend.GetSecret(ctx, azureSecretName(path))
}

// PutDBCredential stores a per-tenant database connection string.
func (c *Client) PutDBCredential(ctx context.Context, tenantID, name, value string) error {
	path := dbCredentialPath(tenantID, name)
	return c.backend.SetSecret(ctx, azureSecretName(path), value)
}
