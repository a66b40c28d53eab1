// Package docstore is the authenticated HTTP client for the remote
// schema-less document store. It speaks the typed-field wire format and
// supports partial writes through explicit field masks, so concurrent
// updates to disjoint field sets never clobber each other.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"courier/internal/codec"
)

// TokenSource supplies the bearer credential attached to every request.
// *session.Session satisfies it.
type TokenSource interface {
	Token() (string, error)
}

// Precondition makes an update conditional on a field's current value. The
// store compares server-side and rejects the write with 409 when the value
// has changed, which is what guards acceptance against double assignment.
type Precondition struct {
	Field  string
	Equals string
}

// Document is one decoded store document.
type Document struct {
	ID     string
	Fields map[string]any
}

// Client is the remote document store client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a store client. baseURL points at the store API root,
// e.g. "https://store.example.com/v1".
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// Get fetches one document and returns its decoded fields.
func (c *Client) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, c.documentURL(collection, id), nil)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return codec.DecodeFields(doc.Fields), nil
}

// List fetches a full collection listing. The store has no native query
// support this client uses; callers filter client-side.
func (c *Client) List(ctx context.Context, collection string) ([]Document, error) {
	body, err := c.do(ctx, http.MethodGet, c.collectionURL(collection), nil)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Documents []struct {
			Name   string         `json:"name"`
			Fields map[string]any `json:"fields"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	docs := make([]Document, 0, len(listing.Documents))
	for _, d := range listing.Documents {
		docs = append(docs, Document{
			ID:     documentID(d.Name),
			Fields: codec.DecodeFields(d.Fields),
		})
	}
	return docs, nil
}

// Set writes a full document with no mask, creating or replacing it.
func (c *Client) Set(ctx context.Context, collection, id string, obj map[string]any) error {
	payload, err := json.Marshal(map[string]any{"fields": codec.EncodeFields(obj)})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, c.documentURL(collection, id), payload)
	return err
}

// Patch performs a partial update. changed maps field paths (dotted for
// nested fields, e.g. "driverLocation.latitude") to their new native
// values; the update mask lists exactly those paths, and fields not named
// in it are left untouched on the remote side.
func (c *Client) Patch(ctx context.Context, collection, id string, changed map[string]any) error {
	return c.patch(ctx, collection, id, changed, nil)
}

// PatchIf is Patch guarded by a store-enforced precondition. It returns
// ErrPreconditionFailed when the named field no longer has the expected
// value at the time the store applies the write.
func (c *Client) PatchIf(ctx context.Context, collection, id string, changed map[string]any, pre Precondition) error {
	return c.patch(ctx, collection, id, changed, &pre)
}

func (c *Client) patch(ctx context.Context, collection, id string, changed map[string]any, pre *Precondition) error {
	nested := nestPaths(changed)
	payload, err := json.Marshal(map[string]any{"fields": codec.EncodeFields(nested)})
	if err != nil {
		return err
	}

	q := url.Values{}
	for _, path := range sortedPaths(changed) {
		q.Add("updateMask.fieldPaths", path)
	}
	if pre != nil {
		q.Set("precondition.fieldPath", pre.Field)
		q.Set("precondition.value", pre.Equals)
	}

	target := c.documentURL(collection, id) + "?" + q.Encode()
	_, err = c.do(ctx, http.MethodPatch, target, payload)
	return err
}

// Delete removes a document. Deleting an already-absent document is a no-op.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.documentURL(collection, id), nil)
	if err == ErrNotFound {
		return nil
	}
	return err
}

// do issues one authenticated request and classifies the response. The
// credential check happens before any network call.
func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		return nil, fmt.Errorf("%w: no bearer token", ErrUnauthenticated)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrPreconditionFailed
	default:
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
}

func (c *Client) collectionURL(collection string) string {
	return c.baseURL + "/documents/" + collection
}

func (c *Client) documentURL(collection, id string) string {
	return c.collectionURL(collection) + "/" + id
}

// documentID extracts the document identifier from a resource name, whose
// final path segment is the id.
func documentID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// nestPaths expands dotted field paths into the nested object the wire body
// carries, so "driverLocation.latitude" becomes driverLocation{latitude}.
func nestPaths(changed map[string]any) map[string]any {
	nested := make(map[string]any, len(changed))
	for path, value := range changed {
		parts := strings.Split(path, ".")
		node := nested
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return nested
}

func sortedPaths(changed map[string]any) []string {
	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
