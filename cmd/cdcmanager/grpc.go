package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/brightlane/ingestflow/internal/cdc"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/factory"
)

// jsonCodecName is registered with grpc's encoding package so every call
// on these connections marshals with encoding/json instead of protobuf.
// The event bus's wire messages (GetTopic/Subscribe/FetchRequest/
// FetchResponse) are plain structs, so there is no .proto schema to
// generate a binary codec from; grpc's codec is pluggable precisely for
// this case.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// getTopicRequest/getTopicReply and the subscribe stream messages mirror
// the event bus's GetTopic/Subscribe RPC shapes from cdc/stream.go,
// reused verbatim as the wire format.
type getTopicRequest struct {
	TopicName string `json:"topic_name"`
}

type getTopicReply struct {
	TopicName    string `json:"topic_name"`
	CanSubscribe bool   `json:"can_subscribe"`
}

const (
	methodGetTopic  = "/eventbus.v1.PubSub/GetTopic"
	methodSubscribe = "/eventbus.v1.PubSub/Subscribe"
)

// grpcStreamClient implements cdc.StreamClient over a single tenant's
// authenticated gRPC connection.
type grpcStreamClient struct {
	conn *grpc.ClientConn
}

func (c *grpcStreamClient) GetTopic(ctx context.Context, name string) (cdc.Topic, error) {
	var reply getTopicReply
	err := c.conn.Invoke(ctx, methodGetTopic, &getTopicRequest{TopicName: name}, &reply, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		if grpcStatusNotFound(err) {
			return cdc.Topic{}, &cerrors.NotFoundError{Resource: name}
		}
		return cdc.Topic{}, fmt.Errorf("get topic %s: %w", name, err)
	}
	return cdc.Topic{Name: reply.TopicName, CanSubscribe: reply.CanSubscribe}, nil
}

func (c *grpcStreamClient) Subscribe(ctx context.Context) (cdc.Subscription, error) {
	desc := &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true, ClientStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, methodSubscribe, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}
	return &grpcSubscription{stream: stream}, nil
}

func (c *grpcStreamClient) Close() error {
	return c.conn.Close()
}

type grpcSubscription struct {
	stream grpc.ClientStream
}

func (s *grpcSubscription) Send(req cdc.FetchRequest) error {
	return s.stream.SendMsg(&req)
}

func (s *grpcSubscription) Recv() (*cdc.FetchResponse, error) {
	var resp cdc.FetchResponse
	if err := s.stream.RecvMsg(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *grpcSubscription) CloseSend() error {
	return s.stream.CloseSend()
}

// accessTokenCreds carries the tenant's resolved Salesforce access token
// and instance URL as per-RPC metadata, the way the event bus
// authenticates every call on an otherwise anonymous TLS channel.
type accessTokenCreds struct {
	accessToken string
	instanceURL string
}

func (c accessTokenCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		"accesstoken": c.accessToken,
		"instanceurl": c.instanceURL,
	}, nil
}

func (c accessTokenCreds) RequireTransportSecurity() bool { return true }

// newDialer builds a cdc.Dialer that resolves each tenant's Salesforce
// credentials through the factory, then opens a fresh TLS connection to
// the event bus endpoint carrying those credentials as per-RPC metadata.
// A fresh connection per dial (rather than a pooled one) matches the
// listener's own reconnect-on-failure lifecycle in cdc.Listener.Run.
func newDialer(endpoint string, fac *factory.Factory) cdc.Dialer {
	return func(ctx context.Context, tenantID string) (cdc.StreamClient, error) {
		creds, err := fac.Resolve(ctx, tenantID, salesforceSource, nil)
		if err != nil {
			return nil, fmt.Errorf("resolve salesforce credentials for %s: %w", tenantID, err)
		}

		tlsCreds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		if endpoint == "" {
			tlsCreds = insecureCreds()
		}

		conn, err := grpc.NewClient(endpoint,
			grpc.WithTransportCredentials(tlsCreds),
			grpc.WithPerRPCCredentials(accessTokenCreds{accessToken: creds.AccessToken, instanceURL: creds.Subdomain}),
		)
		if err != nil {
			return nil, fmt.Errorf("dial event bus for %s: %w", tenantID, err)
		}
		return &grpcStreamClient{conn: conn}, nil
	}
}

func insecureCreds() credentials.TransportCredentials {
	return insecure.NewCredentials()
}

// grpcStatusNotFound reports whether err is a gRPC NotFound status, the
// event bus's way of saying a channel doesn't exist for this org
// (cdc.Listener.probe treats this as "CDC not enabled", not an error).
func grpcStatusNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}
