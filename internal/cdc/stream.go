// Package cdc implements the change-data-capture listener fleet from
// spec §4.4: a per-tenant reconnecting state machine subscribing to
// Salesforce's bidirectional gRPC event-bus channels, and a manager
// that keeps the fleet in sync with which tenants have the source
// connected.
package cdc

import "context"

// Topic describes one subscribable object-type channel (e.g.
// "/data/AccountChangeEvent").
type Topic struct {
	Name         string
	CanSubscribe bool
}

// FetchRequest is sent on the request side of a channel subscription.
type FetchRequest struct {
	Topic        string
	ReplayPreset string
	NumRequested int32
}

// RawEvent is one undecoded event off the wire, schema-tagged so the
// listener can look up (or fetch) its decoder.
type RawEvent struct {
	SchemaID string
	Payload  []byte
}

// FetchResponse is one server-streamed batch of events.
type FetchResponse struct {
	Events []RawEvent
}

// Subscription is a single channel's bidirectional stream.
type Subscription interface {
	Send(FetchRequest) error
	Recv() (*FetchResponse, error)
	CloseSend() error
}

// StreamClient is the gRPC surface the listener depends on, narrowed so
// tests can supply a fake without standing up a live event bus.
type StreamClient interface {
	// GetTopic probes whether a channel exists and is subscribable for
	// this tenant's org. A NotFoundError from the connector taxonomy
	// means "CDC not enabled for this object type", not a fatal error.
	GetTopic(ctx context.Context, name string) (Topic, error)
	// Subscribe opens the bidirectional stream for one channel.
	Subscribe(ctx context.Context) (Subscription, error)
	// Close tears down the underlying secure channel.
	Close() error
}

// SchemaDecoder resolves a schema_id to a decoder for that payload
// shape, fetching on cache miss (§4.4 "caches schemas by id").
type SchemaDecoder interface {
	Decode(ctx context.Context, schemaID string, payload []byte) (DecodedEvent, error)
}

// DecodedEvent is what a decoded CDC record yields: (record_id,
// change_type, commit_number) plus the object type the channel names.
type DecodedEvent struct {
	ObjectType   string
	RecordID     string
	ChangeType   string
	CommitNumber int64
}
