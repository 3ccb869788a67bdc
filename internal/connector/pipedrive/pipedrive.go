// Package pipedrive implements the Pipedrive connector: deal listing
// with the vendor's start/limit pagination and an updated-since filter.
package pipedrive

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
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "pipedrive auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "pipedrive-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "pipedrive", RetryAfter: 2 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type dealStub struct {
	ID         int    `json:"id"`
	UpdateTime string `json:"update_time"`
}

type dealsResponse struct {
	Data           []dealStub `json:"data"`
	AdditionalData struct {
		Pagination struct {
			MoreItemsInCollection bool `json:"more_items_in_collection"`
			NextStart             int  `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

// ListUpdatedSince pages through deals sorted by update_time, stopping
// once a page's oldest record is no longer newer than since.
func (c *Client) ListUpdatedSince(ctx context.Context, _ string, since time.Time) ([]domain.Artifact, time.Time, error) {
	var artifacts []domain.Artifact
	maxUpdated := since
	start := 0

	for {
		path := fmt.Sprintf("/v1/deals?sort=update_time DESC&start=%d&limit=100", start)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
		if err != nil {
			return nil, time.Time{}, err
		}

		var page dealsResponse
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

		done := false
		for _, stub := range page.Data {
			updated, parseErr := time.Parse("2006-01-02 15:04:05", stub.UpdateTime)
			if parseErr != nil {
				continue
			}
			if !updated.After(since) {
				done = true
				continue
			}
			full, err := c.FetchEntity(ctx, "", fmt.Sprintf("%d", stub.ID))
			if err != nil {
				return nil, time.Time{}, err
			}
			if updated.After(maxUpdated) {
				maxUpdated = updated
			}
			artifacts = append(artifacts, full)
		}

		if done || !page.AdditionalData.Pagination.MoreItemsInCollection {
			break
		}
		start = page.AdditionalData.Pagination.NextStart
	}
	return artifacts, maxUpdated, nil
}

// FetchEntity retrieves one deal by id.
func (c *Client) FetchEntity(ctx context.Context, _ string, dealID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/v1/deals/%s", dealID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return domain.Artifact{}, err
	}

	var body struct {
		Data json.RawMessage `json:"data"`
	}
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
		Entity:          "pipedrive_deal",
		EntityID:        domain.EntityID(domain.SourcePipedriveDeal, "", dealID),
		Content:         body.Data,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}
