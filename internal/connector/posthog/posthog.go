// Package posthog implements the PostHog connector: saved-insight
// listing and fetch via PostHog's project-scoped REST API.
package posthog

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
	base      *connector.Client
	projectID string
}

func New(base *connector.Client, projectID string) *Client {
	return &Client{base: base, projectID: projectID}
}

func decodeResponse(resp *http.Response, out interface{}) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "posthog auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "posthog-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "posthog", RetryAfter: 5 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type insightStub struct {
	ID           int    `json:"id"`
	ShortID      string `json:"short_id"`
	LastModified string `json:"last_modified_at"`
}

type insightsResponse struct {
	Results []insightStub `json:"results"`
	Next    string        `json:"next"`
}

// ListUpdatedSince pages through saved insights ordered newest-first by
// last_modified_at, keeping those modified after since and stopping
// after the first page that holds one that is not.
func (c *Client) ListUpdatedSince(ctx context.Context, _ string, since time.Time) ([]domain.Artifact, time.Time, error) {
	var artifacts []domain.Artifact
	maxUpdated := since
	nextURL := fmt.Sprintf("%s/api/projects/%s/insights/?order=-last_modified_at&limit=100", c.base.BaseURL, c.projectID)

	for nextURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return nil, time.Time{}, err
		}

		var page insightsResponse
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

		stop := false
		for _, stub := range page.Results {
			lastModified, parseErr := time.Parse(time.RFC3339, stub.LastModified)
			if parseErr != nil {
				continue
			}
			if !lastModified.After(since) {
				stop = true
				continue
			}
			full, err := c.FetchEntity(ctx, "", fmt.Sprintf("%d", stub.ID))
			if err != nil {
				return nil, time.Time{}, err
			}
			if lastModified.After(maxUpdated) {
				maxUpdated = lastModified
			}
			artifacts = append(artifacts, full)
		}
		if stop {
			break
		}
		nextURL = page.Next
	}
	return artifacts, maxUpdated, nil
}

// FetchEntity retrieves one insight by id.
func (c *Client) FetchEntity(ctx context.Context, _ string, insightID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/api/projects/%s/insights/%s/", c.projectID, insightID)
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
		Entity:          "posthog_insight",
		EntityID:        domain.EntityID(domain.SourcePostHogInsight, "", insightID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}
