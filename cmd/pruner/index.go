package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// indexClient is a thin REST façade over the downstream index service —
// an external collaborator specified only at its interface (§4.6): it
// never interprets documents, only deletes and lists doc-ids within a
// tenant's namespace ("tenant-<id>").
type indexClient struct {
	baseURL string
	http    *http.Client
}

func newIndexClient(baseURL string, timeout time.Duration) *indexClient {
	return &indexClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func namespace(tenantID string) string {
	return "tenant-" + tenantID
}

// DeleteDocument implements pruner.IndexWriter.
func (c *indexClient) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	u := fmt.Sprintf("%s/namespaces/%s/documents/%s", c.baseURL, url.PathEscape(namespace(tenantID)), url.PathEscape(docID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete index document %s: %w", docID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete index document %s: unexpected status %d", docID, resp.StatusCode)
	}
	return nil
}

type listDocsResponse struct {
	DocIDs []string `json:"doc_ids"`
	Next   string   `json:"next_cursor"`
}

// ListIndexedDocIDs implements pruner.IndexedDocLister, paging through
// the namespace's full doc-id listing.
func (c *indexClient) ListIndexedDocIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		u := fmt.Sprintf("%s/namespaces/%s/documents", c.baseURL, url.PathEscape(namespace(tenantID)))
		if cursor != "" {
			u += "?cursor=" + url.QueryEscape(cursor)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list indexed doc ids for %s: %w", tenantID, err)
		}

		var page listDocsResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode indexed doc id page for %s: %w", tenantID, decodeErr)
		}

		ids = append(ids, page.DocIDs...)
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}
	return ids, nil
}
