// Package salesforce implements the Salesforce connector: SOQL-backed
// object sync and per-record fetch, grounded on the generic connector
// client in internal/connector. CDC event decoding and pruning are not
// in this package.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/brightlane/ingestflow/internal/connector"
	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/extractor"
)

const apiVersion = "v60.0"

// Client wraps the generic connector.Client with Salesforce's REST/SOQL
// surface.
type Client struct {
	base *connector.Client
}

func New(base *connector.Client) *Client {
	return &Client{base: base}
}

type soqlResponse struct {
	TotalSize int               `json:"totalSize"`
	Done      bool              `json:"done"`
	NextURL   string            `json:"nextRecordsUrl"`
	Records   []json.RawMessage `json:"records"`
}

// query runs one SOQL query or follows a nextRecordsUrl continuation.
func (c *Client) query(ctx context.Context, soql, continuation string) (soqlResponse, error) {
	var req *http.Request
	var err error
	if continuation != "" {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+continuation, nil)
	} else {
		path := fmt.Sprintf("/services/data/%s/query?q=%s", apiVersion, url.QueryEscape(soql))
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	}
	if err != nil {
		return soqlResponse{}, err
	}

	var out soqlResponse
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &out)
	})
	return out, dispatchErr
}

func decodeResponse(resp *http.Response, out interface{}) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "salesforce auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "salesforce-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "salesforce", RetryAfter: 2 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

// ListUpdatedSince implements extractor.UpdatedSinceLister for a
// single SObject type via SOQL's updated-after filter.
func (c *Client) ListUpdatedSince(ctx context.Context, objectType string, since time.Time) ([]domain.Artifact, time.Time, error) {
	soql := fmt.Sprintf("SELECT Id, LastModifiedDate FROM %s WHERE LastModifiedDate > %s ORDER BY LastModifiedDate ASC", objectType, since.UTC().Format(time.RFC3339))

	var artifacts []domain.Artifact
	maxUpdated := since
	continuation := ""
	for {
		page, err := c.query(ctx, soql, continuation)
		if err != nil {
			return nil, time.Time{}, err
		}
		for _, rec := range page.Records {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(rec, &fields); err != nil {
				continue
			}
			var id string
			_ = json.Unmarshal(fields["Id"], &id)
			var lastModifiedRaw string
			_ = json.Unmarshal(fields["LastModifiedDate"], &lastModifiedRaw)
			lastModified, parseErr := time.Parse(time.RFC3339, lastModifiedRaw)
			if parseErr == nil && lastModified.After(maxUpdated) {
				maxUpdated = lastModified
			}
			artifacts = append(artifacts, domain.Artifact{
				TenantID:        "",
				Entity:          "salesforce_" + objectType,
				EntityID:        domain.EntityID(domain.SourceSalesforce, objectType, id),
				Content:         rec,
				SourceUpdatedAt: lastModified,
			})
		}
		if page.Done {
			break
		}
		continuation = page.NextURL
	}
	return artifacts, maxUpdated, nil
}

// FetchEntity retrieves one record's full representation by id.
// NewEntityFetcher exposes it as an extractor.EntityFetcher; cmd/worker
// registers only incremental extractors for Salesforce, so no process
// extractor calls it there.
func (c *Client) FetchEntity(ctx context.Context, objectType, recordID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/%s", apiVersion, objectType, recordID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return domain.Artifact{}, err
	}

	var body json.RawMessage
	err = c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &body)
	})
	if err != nil {
		return domain.Artifact{}, err
	}

	return domain.Artifact{
		Entity:          "salesforce_" + objectType,
		EntityID:        domain.EntityID(domain.SourceSalesforce, objectType, recordID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}

var _ extractor.EntityFetcher = (*entityFetcherAdapter)(nil)

// entityFetcherAdapter binds FetchEntity's (objectType, recordID)
// shape to extractor.EntityFetcher's (containerID, entityID) shape,
// since Salesforce objects have no container concept.
type entityFetcherAdapter struct {
	client     *Client
	objectType string
}

func NewEntityFetcher(client *Client, objectType string) extractor.EntityFetcher {
	return &entityFetcherAdapter{client: client, objectType: objectType}
}

func (a *entityFetcherAdapter) FetchEntity(ctx context.Context, _ string, entityID string) (domain.Artifact, error) {
	return a.client.FetchEntity(ctx, a.objectType, entityID)
}
