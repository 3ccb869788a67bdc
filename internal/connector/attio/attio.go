// Package attio implements the Attio connector. Attio's list API has no
// updated_after filter for most object types, so the connector defaults
// to a cursorless full-table scan per container (DESIGN.md Open
// Question decision).
package attio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brightlane/ingestflow/internal/connector"
	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/extractor"
)

type Client struct {
	base *connector.Client
}

func New(base *connector.Client) *Client {
	return &Client{base: base}
}

func decodeResponse(resp *http.Response, out interface{}) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "attio auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "attio-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "attio", RetryAfter: 3 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type recordStub struct {
	ID struct {
		RecordID string `json:"record_id"`
	} `json:"id"`
}

type queryResponse struct {
	Data []json.RawMessage `json:"data"`
}

// ListRecordsPage performs one page of Attio's cursorless offset-based
// record query for an object type, since the API offers no incremental
// filter on most objects.
func (c *Client) ListRecordsPage(ctx context.Context, objectSlug string, offset int) ([]domain.Artifact, bool, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"limit":  100,
		"offset": offset,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v2/objects/%s/records/query", c.base.BaseURL, objectSlug), bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out queryResponse
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &out)
	})
	if dispatchErr != nil {
		return nil, false, dispatchErr
	}

	artifacts := make([]domain.Artifact, 0, len(out.Data))
	for _, raw := range out.Data {
		var stub recordStub
		if err := json.Unmarshal(raw, &stub); err != nil {
			continue
		}
		artifacts = append(artifacts, domain.Artifact{
			Entity:          "attio_record_" + objectSlug,
			EntityID:        domain.EntityID(domain.SourceAttioRecord, objectSlug, stub.ID.RecordID),
			Content:         raw,
			SourceUpdatedAt: time.Now().UTC(),
		})
	}
	return artifacts, len(out.Data) == 100, nil
}

// ListRecordIDsPage performs the same cursorless offset query as
// ListRecordsPage but returns bare record ids, the shape the
// enumerate-extractor adapter needs (the process stage re-fetches each
// record's full content via FetchEntity).
func (c *Client) ListRecordIDsPage(ctx context.Context, objectSlug string, offset int) ([]string, bool, error) {
	artifacts, hasMore, err := c.ListRecordsPage(ctx, objectSlug, offset)
	if err != nil {
		return nil, false, err
	}
	ids := make([]string, len(artifacts))
	for i, a := range artifacts {
		ids[i] = recordIDFromEntityID(objectSlug, a.EntityID)
	}
	return ids, hasMore, nil
}

func recordIDFromEntityID(objectSlug, entityID string) string {
	prefix := fmt.Sprintf("%s_%s_", domain.SourceAttioRecord, objectSlug)
	return entityID[len(prefix):]
}

var _ extractor.EntityLister = (*entityListerAdapter)(nil)

// entityListerAdapter adapts ListRecordIDsPage's integer-offset
// pagination to extractor.EntityLister's opaque-cursor shape.
type entityListerAdapter struct {
	client     *Client
	objectSlug string
}

func NewEntityLister(client *Client, objectSlug string) extractor.EntityLister {
	return &entityListerAdapter{client: client, objectSlug: objectSlug}
}

func (a *entityListerAdapter) ListEntities(ctx context.Context, containerID, cursor string) (extractor.EntityPage, error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return extractor.EntityPage{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		offset = parsed
	}

	ids, hasMore, err := a.client.ListRecordIDsPage(ctx, a.objectSlug, offset)
	if err != nil {
		return extractor.EntityPage{}, err
	}
	next := ""
	if hasMore {
		next = strconv.Itoa(offset + 100)
	}
	return extractor.EntityPage{EntityIDs: ids, NextCursor: next, Done: !hasMore}, nil
}

// FetchEntity retrieves a single record by object slug and record id.
func (c *Client) FetchEntity(ctx context.Context, objectSlug string, recordID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/v2/objects/%s/records/%s", objectSlug, recordID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return domain.Artifact{}, err
	}

	var body json.RawMessage
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &body)
	})
	if dispatchErr != nil {
		return domain.Artifact{}, dispatchErr
	}

	return domain.Artifact{
		Entity:          "attio_record_" + objectSlug,
		EntityID:        domain.EntityID(domain.SourceAttioRecord, objectSlug, recordID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}
