package cdc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/logging"
)

type fakeTenantLister struct {
	mu      sync.Mutex
	tenants []string
}

func (f *fakeTenantLister) ListCDCEnabledTenants(ctx context.Context, source domain.Source) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tenants))
	copy(out, f.tenants)
	return out, nil
}

func (f *fakeTenantLister) set(tenants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = tenants
}

func failingDial(ctx context.Context, tenantID string) (StreamClient, error) {
	return nil, errors.New("no event bus in tests")
}

func newTestManager(lister TenantLister) *Manager {
	return NewManager(domain.SourceSalesforce, []string{"/data/AccountChangeEvent"}, lister, failingDial, nil, nil, logging.New("test", "error", "text"))
}

func TestManager_ReconcileStartsAndStopsListeners(t *testing.T) {
	lister := &fakeTenantLister{tenants: []string{"tenant1", "tenant2"}}
	m := newTestManager(lister)

	require.NoError(t, m.reconcile(context.Background()))
	assert.Equal(t, 2, m.TenantCount())

	lister.set("tenant1")
	require.NoError(t, m.reconcile(context.Background()))
	assert.Equal(t, 1, m.TenantCount())

	m.stopAll()
	assert.Equal(t, 0, m.TenantCount())
}

func TestManager_Run_StopsAllListenersOnCancel(t *testing.T) {
	lister := &fakeTenantLister{tenants: []string{"tenant1"}}
	m := newTestManager(lister)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, m.TenantCount(), "Run must await every listener's shutdown before returning")
}
