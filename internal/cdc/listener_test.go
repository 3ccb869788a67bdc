package cdc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/logging"
)

type fakeStreamClient struct {
	topics map[string]Topic
	errs   map[string]error
}

func (c *fakeStreamClient) GetTopic(ctx context.Context, name string) (Topic, error) {
	if err, ok := c.errs[name]; ok {
		return Topic{}, err
	}
	return c.topics[name], nil
}

func (c *fakeStreamClient) Subscribe(ctx context.Context) (Subscription, error) {
	return nil, errors.New("not used in this test")
}

func (c *fakeStreamClient) Close() error { return nil }

func newTestListener() *Listener {
	return NewListener("tenant1", domain.SourceSalesforce, []string{"/data/AccountChangeEvent", "/data/ContactChangeEvent", "/data/LeadChangeEvent"}, nil, nil, nil, logging.New("test", "error", "text"))
}

func TestListener_Probe_FiltersNotEnabledAndUnsubscribable(t *testing.T) {
	l := newTestListener()
	client := &fakeStreamClient{
		topics: map[string]Topic{
			"/data/AccountChangeEvent": {Name: "/data/AccountChangeEvent", CanSubscribe: true},
			"/data/ContactChangeEvent": {Name: "/data/ContactChangeEvent", CanSubscribe: false},
		},
		errs: map[string]error{
			"/data/LeadChangeEvent": &cerrors.NotFoundError{Resource: "topic", ID: "/data/LeadChangeEvent"},
		},
	}

	enabled, err := l.probe(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/AccountChangeEvent"}, enabled)
}

func TestListener_SetState_FiresCallbackOnChange(t *testing.T) {
	l := newTestListener()
	var transitions []State
	l.OnStateChange(func(tenantID, source string, previous, next State) {
		transitions = append(transitions, next)
	})

	l.setState(StateConnecting)
	l.setState(StateConnecting) // no-op, same state
	l.setState(StateProbing)

	assert.Equal(t, []State{StateProbing}, transitions, "callback should only fire on an actual transition")
	assert.Equal(t, StateProbing, l.State())
}

func TestListener_BackoffSleep_DoublesUpToMax(t *testing.T) {
	l := newTestListener()

	next := l.backoffSleep(context.Background(), 40*time.Second)
	assert.Equal(t, maxBackoff, next, "doubling past maxBackoff should clamp")

	next = l.backoffSleep(context.Background(), time.Second)
	assert.Equal(t, 2*time.Second, next)
}

func TestListener_BackoffSleep_RespectsCancellation(t *testing.T) {
	l := newTestListener()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	l.backoffSleep(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second, "cancelled context should cut the sleep short")
}
