// Package fireflies implements the Fireflies connector: GraphQL
// transcript listing over fixed time windows, advanced by the
// incremental extractor. JobConfig.DurationSeconds is not read here, and
// there is no time-budgeted backfill job for this source.
package fireflies

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brightlane/ingestflow/internal/connector"
	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/extractor"
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
			return &cerrors.RateLimitedError{Endpoint: "fireflies", RetryAfter: 30 * time.Second}
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &cerrors.AuthFailedError{StatusCode: resp.StatusCode, Message: "fireflies auth rejected"}
		}
		if resp.StatusCode != http.StatusOK {
			return &cerrors.APIError{Status: resp.StatusCode}
		}

		var env connector.GraphQLEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr != nil {
			return decodeErr
		}
		if classifyErr := connector.ClassifyGraphQLErrors("fireflies", env); classifyErr != nil {
			return classifyErr
		}
		return json.Unmarshal(env.Data, out)
	})
}

const transcriptsQuery = `
query Transcripts($fromDate: DateTime, $toDate: DateTime, $skip: Int) {
  transcripts(fromDate: $fromDate, toDate: $toDate, skip: $skip, limit: 50) {
    id title date
  }
}`

type transcriptStub struct {
	ID   string `json:"id"`
	Date int64  `json:"date"`
}

type transcriptsData struct {
	Transcripts []transcriptStub `json:"transcripts"`
}

// ListWindow lists every transcript created within [from, to), paging
// with skip since Fireflies has no cursor.
func (c *Client) ListWindow(ctx context.Context, from, to time.Time) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	skip := 0
	for {
		var data transcriptsData
		vars := map[string]interface{}{
			"fromDate": from.UTC().Format(time.RFC3339),
			"toDate":   to.UTC().Format(time.RFC3339),
			"skip":     skip,
		}
		if err := c.execute(ctx, transcriptsQuery, vars, &data); err != nil {
			return nil, err
		}
		if len(data.Transcripts) == 0 {
			break
		}
		for _, stub := range data.Transcripts {
			full, err := c.FetchEntity(ctx, "", stub.ID)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, full)
		}
		if len(data.Transcripts) < 50 {
			break
		}
		skip += 50
	}
	return artifacts, nil
}

const transcriptQuery = `
query Transcript($id: String!) {
  transcript(id: $id) {
    id title date duration
    sentences { text speaker_name start_time }
    summary { overview action_items }
  }
}`

type transcriptData struct {
	Transcript json.RawMessage `json:"transcript"`
}

// FetchEntity fetches one transcript's full representation by id.
func (c *Client) FetchEntity(ctx context.Context, _ string, transcriptID string) (domain.Artifact, error) {
	var data transcriptData
	if err := c.execute(ctx, transcriptQuery, map[string]interface{}{"id": transcriptID}, &data); err != nil {
		return domain.Artifact{}, err
	}

	return domain.Artifact{
		Entity:          "fireflies_transcript",
		EntityID:        domain.EntityID(domain.SourceFirefliesTranscr, "", transcriptID),
		Content:         data.Transcript,
		SourceUpdatedAt: time.Now().UTC(),
	}, nil
}

// updatedSinceLister adapts the time-sliced ListWindow call to
// extractor.UpdatedSinceLister, treating the watermark as the start of
// the next window rather than a true "updated after" filter, since
// Fireflies' API has no per-record update timestamp to filter on. The
// window always advances to `to`, even when empty, per the no-gap
// handoff decision in DESIGN.md.
type updatedSinceLister struct {
	client *Client
	window time.Duration
}

// NewUpdatedSinceLister builds the incremental adapter used once a
// tenant's Fireflies backfill has completed (§4.5's time-sliced backfill
// handoff to ordinary incremental sync).
func NewUpdatedSinceLister(client *Client, window time.Duration) extractor.UpdatedSinceLister {
	return &updatedSinceLister{client: client, window: window}
}

func (l *updatedSinceLister) ListUpdatedSince(ctx context.Context, _ string, since time.Time) ([]domain.Artifact, time.Time, error) {
	to := since.Add(l.window)
	if now := time.Now().UTC(); to.After(now) {
		to = now
	}
	if !to.After(since) {
		return nil, since, nil
	}

	items, err := l.client.ListWindow(ctx, since, to)
	if err != nil {
		return nil, since, err
	}
	return items, to, nil
}
