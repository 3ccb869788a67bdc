package cdc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/logging"
)

const repollInterval = 60 * time.Second

// TenantLister reports which tenants currently have the CDC source
// connected, so the manager can reconcile the listener fleet against
// the control DB (§4.4 "queries the control DB for tenants with a
// source flag set").
type TenantLister interface {
	ListCDCEnabledTenants(ctx context.Context, source domain.Source) ([]string, error)
}

type listenerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager keeps exactly one running Listener per CDC-enabled tenant,
// re-polling the control DB every 60s to add or remove listeners as
// tenants connect or disconnect the source (§4.4).
type Manager struct {
	source   domain.Source
	channels []string
	lister   TenantLister
	dial     Dialer
	decoder  SchemaDecoder
	forward  *Forwarder
	logger   *logging.Logger
	onState  func(tenantID, source string, previous, next State)

	mu        sync.Mutex
	listeners map[string]*listenerHandle
}

func NewManager(source domain.Source, channels []string, lister TenantLister, dial Dialer, decoder SchemaDecoder, forward *Forwarder, logger *logging.Logger) *Manager {
	return &Manager{
		source:    source,
		channels:  channels,
		lister:    lister,
		dial:      dial,
		decoder:   decoder,
		forward:   forward,
		logger:    logger,
		listeners: make(map[string]*listenerHandle),
	}
}

// OnListenerStateChange registers a callback propagated to every
// listener the manager starts, used to drive the cdc_listener_state
// metric.
func (m *Manager) OnListenerStateChange(fn func(tenantID, source string, previous, next State)) {
	m.onState = fn
}

// Run reconciles the fleet once immediately, then on every repoll tick,
// until ctx is cancelled — at which point it cancels every listener
// task and awaits completion (§4.4 "on shutdown: cancels every listener
// task and awaits completion").
func (m *Manager) Run(ctx context.Context) error {
	if err := m.reconcile(ctx); err != nil {
		m.logger.Warn(ctx, "cdc manager initial reconcile failed", logrus.Fields{"source": m.source, "error": err.Error()})
	}

	ticker := time.NewTicker(repollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return nil
		case <-ticker.C:
			if err := m.reconcile(ctx); err != nil {
				m.logger.Warn(ctx, "cdc manager reconcile failed", logrus.Fields{"source": m.source, "error": err.Error()})
			}
		}
	}
}

func (m *Manager) reconcile(ctx context.Context) error {
	tenants, err := m.lister.ListCDCEnabledTenants(ctx, m.source)
	if err != nil {
		return err
	}
	wanted := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		wanted[t] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for tenantID := range wanted {
		if _, running := m.listeners[tenantID]; !running {
			m.startLocked(ctx, tenantID)
		}
	}
	for tenantID, handle := range m.listeners {
		if !wanted[tenantID] {
			handle.cancel()
			delete(m.listeners, tenantID)
		}
	}
	return nil
}

func (m *Manager) startLocked(parentCtx context.Context, tenantID string) {
	listenerCtx, cancel := context.WithCancel(parentCtx)
	done := make(chan struct{})
	m.listeners[tenantID] = &listenerHandle{cancel: cancel, done: done}

	listener := NewListener(tenantID, m.source, m.channels, m.dial, m.decoder, m.forward, m.logger)
	listener.OnStateChange(m.onState)

	go func() {
		defer close(done)
		listener.Run(listenerCtx)
	}()

	m.logger.Info(parentCtx, "cdc listener started", logrus.Fields{"tenant_id": tenantID, "source": m.source})
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	handles := make([]*listenerHandle, 0, len(m.listeners))
	for tenantID, handle := range m.listeners {
		handle.cancel()
		handles = append(handles, handle)
		delete(m.listeners, tenantID)
	}
	m.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}
}

// TenantCount reports the current fleet size, used by health checks.
func (m *Manager) TenantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
