// Package teamwork implements the Teamwork connector: task listing with
// `included`-section side-loading and the isPrivate fail-closed
// visibility rule (§4.5).
package teamwork

import (
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
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "teamwork auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "teamwork-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "teamwork", RetryAfter: 2 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type tasksResponse struct {
	Tasks    []json.RawMessage          `json:"tasks"`
	Included map[string]json.RawMessage `json:"included"`
	Meta     struct {
		Page struct {
			HasMore bool `json:"hasMore"`
		} `json:"page"`
	} `json:"meta"`
}

// ListTasksPage fetches one page of a project's tasks with users and
// tags side-loaded via the `included` section, enriching each task
// under underscored relation keys the way Teamwork's API nests them.
func (c *Client) ListTasksPage(ctx context.Context, projectID string, page int) ([]json.RawMessage, bool, error) {
	path := fmt.Sprintf("/projects/%s/tasks.json?page=%d&pageSize=100&include=users,tags", projectID, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return nil, false, err
	}

	var out tasksResponse
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

	sideLoaded, err := connector.ParseSideLoaded(flattenIncluded(out.Included))
	if err != nil {
		return nil, false, fmt.Errorf("parse included section: %w", err)
	}

	byID := make(map[string]json.RawMessage, len(out.Tasks))
	ids := make([]string, 0, len(out.Tasks))
	for _, raw := range out.Tasks {
		var stub struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(raw, &stub); err != nil {
			continue
		}
		byID[stub.ID.String()] = raw
		ids = append(ids, stub.ID.String())
	}

	enriched := connector.Enrich(byID, map[string]struct{ Type, As string }{
		"responsible-party-ids": {Type: "users", As: "_assignees"},
		"tag-ids":               {Type: "tags", As: "_tags"},
	}, sideLoaded)

	tasks := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		if raw, ok := enriched[id]; ok {
			tasks = append(tasks, raw)
		}
	}
	return tasks, out.Meta.Page.HasMore, nil
}

var _ extractor.EntityLister = (*entityListerAdapter)(nil)

// entityListerAdapter adapts ListTasksPage's page-number pagination to
// extractor.EntityLister's opaque-cursor shape.
type entityListerAdapter struct {
	client *Client
}

func NewEntityLister(client *Client) extractor.EntityLister {
	return &entityListerAdapter{client: client}
}

func (a *entityListerAdapter) ListEntities(ctx context.Context, containerID, cursor string) (extractor.EntityPage, error) {
	page := 1
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return extractor.EntityPage{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		page = parsed
	}

	tasks, hasMore, err := a.client.ListTasksPage(ctx, containerID, page)
	if err != nil {
		return extractor.EntityPage{}, err
	}

	ids := make([]string, 0, len(tasks))
	for _, raw := range tasks {
		var stub struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(raw, &stub); err != nil {
			continue
		}
		ids = append(ids, stub.ID.String())
	}

	next := ""
	if hasMore {
		next = strconv.Itoa(page + 1)
	}
	return extractor.EntityPage{EntityIDs: ids, NextCursor: next, Done: !hasMore}, nil
}

func flattenIncluded(included map[string]json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(included))
	for _, v := range included {
		out = append(out, v)
	}
	return out
}

// taskVisibility mirrors Teamwork's isPrivate field: missing or null is
// private (fail-closed), per spec §4.5.
type taskVisibility struct {
	IsPrivate *bool `json:"isPrivate"`
}

// IsPrivate implements extractor.VisibilityChecker.
func (c *Client) IsPrivate(a domain.Artifact) bool {
	var v taskVisibility
	if err := json.Unmarshal(a.Content, &v); err != nil {
		return true
	}
	if v.IsPrivate == nil {
		return true
	}
	return *v.IsPrivate
}

// FetchTask retrieves one task's full representation, including
// comments — used for both CDC-style re-fetch and backfill batches.
func (c *Client) FetchTask(ctx context.Context, _ string, taskID string) (domain.Artifact, error) {
	path := fmt.Sprintf("/tasks/%s.json?include=users,tags,comments", taskID)
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
		Entity:          "teamwork_task",
		EntityID:        domain.EntityID(domain.SourceTeamworkTask, "", taskID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}

// entityFetcherAdapter binds FetchTask to extractor.EntityFetcher.
type entityFetcherAdapter struct {
	client *Client
}

func NewEntityFetcher(client *Client) extractor.EntityFetcher {
	return &entityFetcherAdapter{client: client}
}

func (a *entityFetcherAdapter) FetchEntity(ctx context.Context, containerID, entityID string) (domain.Artifact, error) {
	return a.client.FetchTask(ctx, containerID, entityID)
}
