// Package figma implements the Figma connector: team-file enumeration
// and fetch. The team-file iterator lists the team's projects, then each
// project's files, and buffers and flattens them rather than streaming
// page by page (DESIGN.md Open Question
// decision).
package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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
		return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "figma auth rejected"}
	case http.StatusNotFound:
		return &cerrors.NotFoundError{Resource: "figma-resource"}
	case http.StatusTooManyRequests:
		return &cerrors.RateLimitedError{Endpoint: "figma", RetryAfter: 3 * time.Second}
	default:
		return &cerrors.APIError{Status: resp.StatusCode}
	}
}

type project struct {
	ID string `json:"id"`
}

type projectsResponse struct {
	Projects []project `json:"projects"`
}

type fileStub struct {
	Key          string `json:"key"`
	LastModified string `json:"last_modified"`
}

type projectFilesResponse struct {
	Files []fileStub `json:"files"`
}

// IterTeamFiles buffers every project's file list for a team into one
// flattened slice: Figma has no cross-project file listing endpoint, so
// this first lists the team's projects, then each project's files.
func (c *Client) IterTeamFiles(ctx context.Context, teamID string) ([]fileStub, error) {
	path := fmt.Sprintf("/v1/teams/%s/projects", teamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}

	var projectsOut projectsResponse
	dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &projectsOut)
	})
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	var allFiles []fileStub
	for _, p := range projectsOut.Projects {
		filesPath := fmt.Sprintf("/v1/projects/%s/files", p.ID)
		filesReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.BaseURL+filesPath, nil)
		if err != nil {
			return nil, err
		}

		var filesOut projectFilesResponse
		dispatchErr := c.base.Dispatch(ctx, func(attempt int) error {
			resp, doErr := c.base.Do(ctx, filesReq)
			if doErr != nil {
				return doErr
			}
			defer resp.Body.Close()
			return decodeResponse(resp, &filesOut)
		})
		if dispatchErr != nil {
			return nil, dispatchErr
		}
		allFiles = append(allFiles, filesOut.Files...)
	}
	return allFiles, nil
}

var _ extractor.EntityLister = (*entityListerAdapter)(nil)

// entityListerAdapter adapts the buffering IterTeamFiles call into
// extractor.EntityLister's paged shape: since Figma's team-files walk
// has no native cursor, the whole team is returned as a single page.
type entityListerAdapter struct {
	client *Client
}

func NewEntityLister(client *Client) extractor.EntityLister {
	return &entityListerAdapter{client: client}
}

func (a *entityListerAdapter) ListEntities(ctx context.Context, containerID, cursor string) (extractor.EntityPage, error) {
	if cursor != "" {
		return extractor.EntityPage{Done: true}, nil
	}
	files, err := a.client.IterTeamFiles(ctx, containerID)
	if err != nil {
		return extractor.EntityPage{}, err
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.Key
	}
	return extractor.EntityPage{EntityIDs: ids, Done: true}, nil
}

// ListUpdatedSince filters the team's buffered file list by
// last_modified and fetches each matching file's full document.
func (c *Client) ListUpdatedSince(ctx context.Context, teamID string, since time.Time) ([]domain.Artifact, time.Time, error) {
	files, err := c.IterTeamFiles(ctx, teamID)
	if err != nil {
		return nil, time.Time{}, err
	}

	maxUpdated := since
	var artifacts []domain.Artifact
	for _, f := range files {
		lastModified, parseErr := time.Parse(time.RFC3339, f.LastModified)
		if parseErr != nil || !lastModified.After(since) {
			continue
		}
		full, err := c.FetchEntity(ctx, teamID, f.Key)
		if err != nil {
			return nil, time.Time{}, err
		}
		if lastModified.After(maxUpdated) {
			maxUpdated = lastModified
		}
		artifacts = append(artifacts, full)
	}
	return artifacts, maxUpdated, nil
}

// FetchEntity retrieves one file's full document tree. teamID is the
// container this file was enumerated under, needed to rebuild the
// entity id consistently with ListUpdatedSince.
func (c *Client) FetchEntity(ctx context.Context, teamID string, fileKey string) (domain.Artifact, error) {
	path := fmt.Sprintf("/v1/files/%s", fileKey)
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
		Entity:          "figma_file",
		EntityID:        domain.EntityID(domain.SourceFigmaFile, teamID, fileKey),
		Content:         body,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}
