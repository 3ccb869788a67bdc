package main

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"github.com/brightlane/ingestflow/internal/cache"
	"github.com/brightlane/ingestflow/internal/cdc"
)

const methodGetSchema = "/eventbus.v1.PubSub/GetSchema"

type getSchemaRequest struct {
	SchemaID string `json:"schema_id"`
}

type getSchemaReply struct {
	SchemaID  string `json:"schema_id"`
	SchemaRaw string `json:"schema_json"`
}

// changeEventHeader mirrors the nested header every Salesforce CDC event
// payload carries, decoded here as plain JSON rather than Avro: the
// event bus's wire encoding is Avro binary keyed by schema_id, but no
// Avro codec exists anywhere in this stack to decode it with, so this
// decoder expects the gRPC layer to have already re-encoded the payload
// as the equivalent JSON object (see grpc.go's jsonCodec). Schemas are
// still fetched and cached by id, matching the caching contract even
// though nothing downstream inspects the schema body itself.
type changeEventPayload struct {
	Header struct {
		EntityName   string   `json:"entityName"`
		RecordIDs    []string `json:"recordIds"`
		ChangeType   string   `json:"changeType"`
		CommitNumber int64    `json:"commitNumber"`
	} `json:"ChangeEventHeader"`
}

// schemaDecoder implements cdc.SchemaDecoder: fetch-and-cache a schema by
// id, then decode the raw event payload as JSON; the cached schema is
// not consulted while decoding.
type schemaDecoder struct {
	dial   func(ctx context.Context) (*grpc.ClientConn, error)
	schemas *cache.SchemaCache
}

func newSchemaDecoder(dial func(ctx context.Context) (*grpc.ClientConn, error)) cdc.SchemaDecoder {
	return &schemaDecoder{dial: dial, schemas: cache.NewSchemaCache()}
}

func (d *schemaDecoder) Decode(ctx context.Context, schemaID string, payload []byte) (cdc.DecodedEvent, error) {
	if _, cached := d.schemas.Get(schemaID); !cached {
		if err := d.fetchSchema(ctx, schemaID); err != nil {
			return cdc.DecodedEvent{}, err
		}
	}

	var evt changeEventPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return cdc.DecodedEvent{}, fmt.Errorf("decode cdc payload for schema %s: %w", schemaID, err)
	}
	if len(evt.Header.RecordIDs) == 0 {
		return cdc.DecodedEvent{}, fmt.Errorf("cdc payload for schema %s carries no record ids", schemaID)
	}

	return cdc.DecodedEvent{
		ObjectType:   evt.Header.EntityName,
		RecordID:     evt.Header.RecordIDs[0],
		ChangeType:   evt.Header.ChangeType,
		CommitNumber: evt.Header.CommitNumber,
	}, nil
}

func (d *schemaDecoder) fetchSchema(ctx context.Context, schemaID string) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial event bus to fetch schema %s: %w", schemaID, err)
	}
	defer conn.Close()

	var reply getSchemaReply
	if err := conn.Invoke(ctx, methodGetSchema, &getSchemaRequest{SchemaID: schemaID}, &reply, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return fmt.Errorf("get schema %s: %w", schemaID, err)
	}
	if reply.SchemaRaw == "" {
		return fmt.Errorf("empty schema returned for schema_id %s", schemaID)
	}
	d.schemas.Set(schemaID, reply.SchemaRaw)
	return nil
}
