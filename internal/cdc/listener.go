package cdc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/logging"
)

// State names the listener's position in the reconnect state machine
// (§4.4).
type State string

const (
	StateConnecting State = "connecting"
	StateProbing    State = "probing"
	StateSubscribed State = "subscribed"
	StateBackoff    State = "backoff"
	StateDraining   State = "draining"
)

const (
	initialBackoff    = time.Second
	maxBackoff        = 60 * time.Second
	requestQueueDepth = 1
	keepaliveInterval = 90 * time.Second
	replayPresetLatest = "LATEST"
)

// Dialer opens a fresh StreamClient for a tenant, wrapping credential
// lookup and the secure-channel handshake.
type Dialer func(ctx context.Context, tenantID string) (StreamClient, error)

// Listener runs one tenant's subscription lifecycle: connect, probe
// supported channels, subscribe to the ones enabled for this org, and
// reconnect with exponential backoff on failure.
type Listener struct {
	tenantID string
	source   domain.Source
	channels []string
	dial     Dialer
	decoder  SchemaDecoder
	forward  *Forwarder
	logger   *logging.Logger
	onState  func(tenantID, source string, previous, next State)

	mu    sync.Mutex
	state State
}

func NewListener(tenantID string, source domain.Source, channels []string, dial Dialer, decoder SchemaDecoder, forward *Forwarder, logger *logging.Logger) *Listener {
	return &Listener{
		tenantID: tenantID,
		source:   source,
		channels: channels,
		dial:     dial,
		decoder:  decoder,
		forward:  forward,
		logger:   logger,
		state:    StateConnecting,
	}
}

// OnStateChange registers a callback fired on every transition, used by
// the manager to drive the cdc_listener_state metric.
func (l *Listener) OnStateChange(fn func(tenantID, source string, previous, next State)) {
	l.onState = fn
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	if l.onState != nil && prev != s {
		l.onState(l.tenantID, string(l.source), prev, s)
	}
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Run drives the reconnect loop until ctx is cancelled, at which point
// it transitions to Draining and returns once every channel task has
// stopped.
func (l *Listener) Run(ctx context.Context) {
	delay := initialBackoff
	for {
		if ctx.Err() != nil {
			l.setState(StateDraining)
			return
		}

		l.setState(StateConnecting)
		client, err := l.dial(ctx, l.tenantID)
		if err != nil {
			l.logger.Warn(ctx, "cdc listener connect failed", logrus.Fields{"tenant_id": l.tenantID, "source": l.source, "error": err.Error()})
			delay = l.backoffSleep(ctx, delay)
			continue
		}

		enabled, probeErr := l.probe(ctx, client)
		if probeErr != nil {
			_ = client.Close()
			l.logger.Warn(ctx, "cdc listener probe failed", logrus.Fields{"tenant_id": l.tenantID, "source": l.source, "error": probeErr.Error()})
			delay = l.backoffSleep(ctx, delay)
			continue
		}
		if len(enabled) == 0 {
			_ = client.Close()
			l.logger.Info(ctx, "cdc listener has no enabled channels, backing off", logrus.Fields{"tenant_id": l.tenantID, "source": l.source})
			delay = l.backoffSleep(ctx, delay)
			continue
		}

		cleanEnd := l.subscribeAll(ctx, client, enabled)
		_ = client.Close()

		if ctx.Err() != nil {
			l.setState(StateDraining)
			return
		}
		if cleanEnd {
			delay = initialBackoff
			continue
		}
		delay = l.backoffSleep(ctx, delay)
	}
}

// probe concurrently calls GetTopic for every configured channel,
// treating NotFound as "CDC not enabled" rather than an error (§4.4).
func (l *Listener) probe(ctx context.Context, client StreamClient) ([]string, error) {
	l.setState(StateProbing)

	type result struct {
		name string
		ok   bool
	}
	results := make(chan result, len(l.channels))
	var wg sync.WaitGroup
	for _, channel := range l.channels {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			topic, err := client.GetTopic(ctx, name)
			if err != nil {
				if _, isNotFound := cerrors.AsNotFound(err); isNotFound {
					l.logger.Info(ctx, "CDC not enabled for object type", logrus.Fields{"tenant_id": l.tenantID, "channel": name})
					results <- result{name: name, ok: false}
					return
				}
				results <- result{name: name, ok: false}
				return
			}
			results <- result{name: name, ok: topic.CanSubscribe}
		}(channel)
	}
	wg.Wait()
	close(results)

	enabled := make([]string, 0, len(l.channels))
	for r := range results {
		if r.ok {
			enabled = append(enabled, r.name)
		}
	}
	return enabled, nil
}

// subscribeAll starts one subscription task per enabled channel and
// waits for all of them to end. Returns true if every task ended
// cleanly (shutdown requested), false if any failed (triggering
// backoff).
func (l *Listener) subscribeAll(ctx context.Context, client StreamClient, channels []string) bool {
	l.setState(StateSubscribed)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, len(channels))
	var wg sync.WaitGroup
	for _, channel := range channels {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := l.runChannel(subCtx, client, name); err != nil {
				failures <- err
				cancel()
			}
		}(channel)
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		if err != nil {
			return false
		}
	}
	return ctx.Err() != nil
}

// runChannel implements the request-side backpressure protocol (§4.4):
// a FetchRequest queue of size 1, immediately refilled on every
// response, with a keepalive if nothing else triggers a push within
// keepaliveInterval.
func (l *Listener) runChannel(ctx context.Context, client StreamClient, channel string) error {
	sub, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.CloseSend()

	if err := sub.Send(FetchRequest{Topic: channel, ReplayPreset: replayPresetLatest, NumRequested: 1}); err != nil {
		return err
	}

	responses := make(chan *FetchResponse, requestQueueDepth)
	recvErrs := make(chan error, 1)
	go func() {
		for {
			resp, err := sub.Recv()
			if err != nil {
				recvErrs <- err
				return
			}
			select {
			case responses <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()

	timer := time.NewTimer(keepaliveInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErrs:
			return err
		case resp := <-responses:
			l.processEvents(ctx, channel, resp.Events)
			// try_push another request; a full queue is acceptable
			// backpressure, so this push is best-effort.
			_ = sub.Send(FetchRequest{Topic: channel, ReplayPreset: replayPresetLatest, NumRequested: 1})
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(keepaliveInterval)
		case <-timer.C:
			_ = sub.Send(FetchRequest{Topic: channel, ReplayPreset: replayPresetLatest, NumRequested: 1})
			timer.Reset(keepaliveInterval)
		}
	}
}

// processEvents decodes each raw event and forwards the resulting CDC
// events to the queue in parallel, logging (not propagating) individual
// failures so one bad record never kills the stream (§4.4).
func (l *Listener) processEvents(ctx context.Context, channel string, raw []RawEvent) {
	var wg sync.WaitGroup
	for _, event := range raw {
		wg.Add(1)
		go func(e RawEvent) {
			defer wg.Done()
			decoded, err := l.decoder.Decode(ctx, e.SchemaID, e.Payload)
			if err != nil {
				l.logger.Error(ctx, "cdc event decode failed", err, logrus.Fields{"tenant_id": l.tenantID, "channel": channel, "schema_id": e.SchemaID})
				return
			}
			cdcEvent := domain.CDCEvent{
				RecordID:     decoded.RecordID,
				ObjectType:   decoded.ObjectType,
				Operation:    domain.CDCOperation(decoded.ChangeType),
				CommitNumber: decoded.CommitNumber,
			}
			if err := l.forward.Forward(ctx, l.tenantID, l.source, []domain.CDCEvent{cdcEvent}); err != nil {
				l.logger.Error(ctx, "cdc event forward failed", err, logrus.Fields{"tenant_id": l.tenantID, "record_id": decoded.RecordID})
			}
		}(event)
	}
	wg.Wait()
}

// backoffSleep sleeps for delay (bounded by ctx cancellation) and
// returns the next delay, doubled up to maxBackoff (§4.4).
func (l *Listener) backoffSleep(ctx context.Context, delay time.Duration) time.Duration {
	l.setState(StateBackoff)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	next := delay * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}
