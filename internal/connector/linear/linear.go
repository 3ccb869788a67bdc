// Package linear implements the Linear connector: a single GraphQL
// endpoint for issue listing and fetch. An HTTP 429 is retried after a
// fixed 60s; GraphQL-level rate-limit errors are classified by
// connector.ClassifyGraphQLErrors. X-RateLimit-* response headers are
// not read (§4.3).
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightlane/ingestflow/internal/connector"
	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
)

const graphqlPath = "/graphql"

type Client struct {
	base *connector.Client
}

func New(base *connector.Client) *Client {
	return &Client{base: base}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// execute posts a GraphQL query, classifies the errors[] array per the
// shared connector taxonomy, and decodes data into out.
func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	return c.base.Dispatch(ctx, func(attempt int) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.base.BaseURL+graphqlPath, bytes.NewReader(payload))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.base.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return &cerrors.RateLimitedError{Endpoint: "linear", RetryAfter: 60 * time.Second}
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "linear auth rejected"}
		}
		if resp.StatusCode != http.StatusOK {
			return &cerrors.APIError{Status: resp.StatusCode}
		}

		var env connector.GraphQLEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr != nil {
			return decodeErr
		}
		if classifyErr := connector.ClassifyGraphQLErrors("linear", env); classifyErr != nil {
			return classifyErr
		}
		return json.Unmarshal(env.Data, out)
	})
}

const issuesQuery = `
query Issues($after: String, $updatedAfter: DateTimeOrDuration) {
  issues(first: 100, after: $after, filter: { updatedAt: { gt: $updatedAfter } }, orderBy: updatedAt) {
    nodes { id identifier updatedAt }
    pageInfo { hasNextPage endCursor }
  }
}`

type issueNode struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type issuesData struct {
	Issues struct {
		Nodes    []issueNode `json:"nodes"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"issues"`
}

// ListUpdatedSince implements extractor.UpdatedSinceLister, paging
// through Linear's cursor-based GraphQL connection.
func (c *Client) ListUpdatedSince(ctx context.Context, _ string, since time.Time) ([]domain.Artifact, time.Time, error) {
	maxUpdated := since
	var artifacts []domain.Artifact
	after := ""
	for {
		var data issuesData
		vars := map[string]interface{}{
			"updatedAfter": since.UTC().Format(time.RFC3339),
		}
		if after != "" {
			vars["after"] = after
		}
		if err := c.execute(ctx, issuesQuery, vars, &data); err != nil {
			return nil, time.Time{}, err
		}

		for _, node := range data.Issues.Nodes {
			full, err := c.FetchEntity(ctx, "", node.ID)
			if err != nil {
				return nil, time.Time{}, err
			}
			if node.UpdatedAt.After(maxUpdated) {
				maxUpdated = node.UpdatedAt
			}
			artifacts = append(artifacts, full)
		}

		if !data.Issues.PageInfo.HasNextPage {
			break
		}
		after = data.Issues.PageInfo.EndCursor
	}
	return artifacts, maxUpdated, nil
}

const issueQuery = `
query Issue($id: String!) {
  issue(id: $id) {
    id identifier title description url updatedAt
    assignee { id name }
    labels { nodes { id name } }
  }
}`

type issueData struct {
	Issue json.RawMessage `json:"issue"`
}

// FetchEntity fetches one issue's full representation by id.
func (c *Client) FetchEntity(ctx context.Context, _ string, issueID string) (domain.Artifact, error) {
	var data issueData
	if err := c.execute(ctx, issueQuery, map[string]interface{}{"id": issueID}, &data); err != nil {
		return domain.Artifact{}, err
	}
	if len(data.Issue) == 0 {
		return domain.Artifact{}, &cerrors.NotFoundError{Resource: fmt.Sprintf("linear issue %s", issueID)}
	}

	return domain.Artifact{
		Entity:          "linear_issue",
		EntityID:        domain.EntityID(domain.SourceLinearIssue, "", issueID),
		Content:         data.Issue,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}
