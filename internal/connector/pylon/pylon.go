// Package pylon implements the Pylon connector: support-issue listing
// and fetch via Pylon's cursor-paginated REST API.
package pylon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightlane/ingestflow/internal/connector"
	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
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
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "pylon auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "pylon-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "pylon", RetryAfter: 2 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type issueStub struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type issuesResponse struct {
	Data       []issueStub `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// ListUpdatedSince pages through issues updated after since, following
// Pylon's cursor until the server returns an empty one.
func (c *Client) ListUpdatedSince(ctx context.Context, _ string, since time.Time) ([]domain.Artifact, time.Time, error) {
	var artifacts []domain.Artifact
	maxUpdated := since
	cursor := ""

	for {
		path := fmt.Sprintf("/issues?updated_after=%s&limit=100", since.UTC().Format(time.RFC3339))
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
		if err != nil {
			return nil, time.Time{}, err
		}

		var page issuesResponse
		dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
			resp, doErr := c.base.Do(ctx, req)
			if doErr != nil {
				return doErr
			}
			defer resp.Body.Close()
			return decodeResponse(resp, &page)
		})
		if dispatchErr != nil {
			return nil, time.Time{}, dispatchErr
		}

		for _, stub := range page.Data {
			full, err := c.FetchEntity(ctx, "", stub.ID)
			if err != nil {
				return nil, time.Time{}, err
			}
			if stub.UpdatedAt.After(maxUpdated) {
				maxUpdated = stub.UpdatedAt
			}
			artifacts = append(artifacts, full)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return artifacts, maxUpdated, nil
}

// FetchEntity retrieves one issue by id, including its thread of
// messages.
func (c *Client) FetchEntity(ctx context.Context, _ string, issueID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/issues/%s?include=messages", issueID)
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
		Entity:          "pylon_issue",
		EntityID:        domain.EntityID(domain.SourcePylonIssue, "", issueID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}
