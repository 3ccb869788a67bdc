// Package gitlab implements the GitLab connector: merge-request
// enumeration/fetch and a per-file incremental commit-diff walk,
// grounded on the generic connector client in internal/connector.
package gitlab

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

const apiPrefix = "/api/v4"

type Client struct {
	base *connector.Client
}

func New(base *connector.Client) *Client {
	return &Client{base: base}
}

func decodeResponse(resp *http.Response, out interface{}) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "gitlab auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "gitlab-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "gitlab", RetryAfter: 1 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type mergeRequestSummary struct {
	IID       int    `json:"iid"`
	UpdatedAt string `json:"updated_at"`
}

// ListMergeRequestIDs pages through a project's merge requests (the
// "container" for the GitLab MR source), using GitLab's page-number
// pagination.
func (c *Client) ListMergeRequestIDs(ctx context.Context, projectID string, page int) ([]string, bool, error) {
	path := fmt.Sprintf("%s/projects/%s/merge_requests?per_page=100&page=%d&order_by=updated_at", apiPrefix, projectID, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return nil, false, err
	}

	var summaries []mergeRequestSummary
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &summaries)
	})
	if dispatchErr != nil {
		return nil, false, dispatchErr
	}

	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i] = fmt.Sprintf("%d", s.IID)
	}
	return ids, len(summaries) < 100, nil
}

var _ extractor.EntityLister = (*entityListerAdapter)(nil)

// entityListerAdapter adapts ListMergeRequestIDs's page-number
// pagination to extractor.EntityLister's opaque-cursor shape: the
// cursor is simply the next page number, serialized as a string.
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

	ids, done, err := a.client.ListMergeRequestIDs(ctx, containerID, page)
	if err != nil {
		return extractor.EntityPage{}, err
	}
	next := ""
	if !done {
		next = strconv.Itoa(page + 1)
	}
	return extractor.EntityPage{EntityIDs: ids, NextCursor: next, Done: done}, nil
}

// FetchMergeRequest fetches one MR's full representation including
// diffs and approvals (§4.5's "side data").
func (c *Client) FetchMergeRequest(ctx context.Context, projectID, mrIID string) (domain.Artifact, error) {
	path := fmt.Sprintf("%s/projects/%s/merge_requests/%s?include_diverged_commits_count=true", apiPrefix, projectID, mrIID)
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
		Entity:          "gitlab_merge_request",
		EntityID:        domain.EntityID(domain.SourceGitLabMR, projectID, mrIID),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}

// entityFetcherAdapter binds FetchMergeRequest's (projectID, mrIID)
// shape to extractor.EntityFetcher's (containerID, entityID) shape.
type entityFetcherAdapter struct {
	client *Client
}

func NewEntityFetcher(client *Client) extractor.EntityFetcher {
	return &entityFetcherAdapter{client: client}
}

func (a *entityFetcherAdapter) FetchEntity(ctx context.Context, containerID, entityID string) (domain.Artifact, error) {
	return a.client.FetchMergeRequest(ctx, containerID, entityID)
}

type commitSummary struct {
	ID string `json:"id"`
}

// WalkChangedFiles implements the commit-diff incremental variant for
// the file source: lists commits after sinceCommit and returns the
// union of changed file paths plus the newest commit SHA to persist as
// the resume cursor.
func (c *Client) WalkChangedFiles(ctx context.Context, projectID, sinceCommit string) ([]string, string, error) {
	path := fmt.Sprintf("%s/projects/%s/repository/commits?ref_name=HEAD&since_sha=%s&per_page=100", apiPrefix, projectID, sinceCommit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return nil, "", err
	}

	var commits []commitSummary
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &commits)
	})
	if dispatchErr != nil {
		return nil, "", dispatchErr
	}
	if len(commits) == 0 {
		return nil, sinceCommit, nil
	}

	fileSet := make(map[string]bool)
	for _, commit := range commits {
		files, err := c.diffFiles(ctx, projectID, commit.ID)
		if err != nil {
			return nil, "", err
		}
		for _, f := range files {
			fileSet[f] = true
		}
	}

	files := make([]string, 0, len(fileSet))
	for f := range fileSet {
		files = append(files, f)
	}
	return files, commits[len(commits)-1].ID, nil
}

type diffEntry struct {
	NewPath string `json:"new_path"`
}

func (c *Client) diffFiles(ctx context.Context, projectID, commitSHA string) ([]string, error) {
	path := fmt.Sprintf("%s/projects/%s/repository/commits/%s/diff", apiPrefix, projectID, commitSHA)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}

	var diffs []diffEntry
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &diffs)
	})
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	paths := make([]string, len(diffs))
	for i, d := range diffs {
		paths[i] = d.NewPath
	}
	return paths, nil
}
