// Package canva implements the Canva connector: design listing/fetch
// and the OAuth refresh exchange Canva requires on every access-token
// renewal, wired as a factory.RefreshFunc (§4.2).
package canva

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brightlane/ingestflow/internal/connector"
	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/extractor"
	"github.com/brightlane/ingestflow/internal/factory"
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
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "canva auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "canva-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "canva", RetryAfter: 5 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type designStub struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
}

type designListResponse struct {
	Items        []designStub `json:"items"`
	Continuation string       `json:"continuation"`
}

// ListDesignsPage pages through the tenant's designs using Canva's
// opaque continuation token.
func (c *Client) ListDesignsPage(ctx context.Context, continuation string) ([]string, string, error) {
	path := "/v1/designs?query="
	if continuation != "" {
		path += "&continuation=" + url.QueryEscape(continuation)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return nil, "", err
	}

	var out designListResponse
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &out)
	})
	if dispatchErr != nil {
		return nil, "", dispatchErr
	}

	ids := make([]string, len(out.Items))
	for i, item := range out.Items {
		ids[i] = item.ID
	}
	return ids, out.Continuation, nil
}

var _ extractor.EntityLister = (*entityListerAdapter)(nil)

// entityListerAdapter adapts ListDesignsPage's continuation-token
// pagination to extractor.EntityLister. Canva designs have no
// sub-team container, so containerID is ignored; callers register a
// single synthetic "default" container per tenant.
type entityListerAdapter struct {
	client *Client
}

func NewEntityLister(client *Client) extractor.EntityLister {
	return &entityListerAdapter{client: client}
}

func (a *entityListerAdapter) ListEntities(ctx context.Context, containerID, cursor string) (extractor.EntityPage, error) {
	ids, next, err := a.client.ListDesignsPage(ctx, cursor)
	if err != nil {
		return extractor.EntityPage{}, err
	}
	return extractor.EntityPage{EntityIDs: ids, NextCursor: next, Done: next == ""}, nil
}

// FetchEntity retrieves one design's metadata and export urls.
func (c *Client) FetchEntity(ctx context.Context, _ string, designID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/v1/designs/%s", designID)
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
		Entity:          "canva_design",
		EntityID:        domain.EntityID(domain.SourceCanvaDesign, "", designID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshToken implements factory.RefreshFunc for Canva: Canva rotates
// both the access and refresh token on every call, so the caller must
// persist the new refresh token or the next refresh will fail.
func RefreshToken(tokenURL, clientID, clientSecret string) factory.RefreshFunc {
	return func(ctx context.Context, creds domain.Credentials) (factory.RefreshResult, error) {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", creds.RefreshToken)
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return factory.RefreshResult{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		client := &http.Client{Timeout: 15 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return factory.RefreshResult{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return factory.RefreshResult{}, &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "canva refresh token rejected"}
		}
		if resp.StatusCode != http.StatusOK {
			return factory.RefreshResult{}, &cerrors.APIError{Status: resp.StatusCode}
		}

		var tok tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			return factory.RefreshResult{}, err
		}

		return factory.RefreshResult{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		}, nil
	}
}
