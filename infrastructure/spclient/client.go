package spclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"spextract/domain/extraction"
	"spextract/domain/sharepoint"
	"spextract/logging"
)

// DefaultBaseURL is the Microsoft Graph v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0/"

// Config configures the Graph client.
type Config struct {
	BaseURL       string
	ItemsPageSize int // $top for item pages, 0 leaves the server default
}

// Client reads sites, lists, columns and items from the Graph API. Every
// request goes through the transport chain it was built with: token gate
// first, then the retry transport.
type Client struct {
	baseURL  string
	http     *http.Client
	pageSize int
	calls    atomic.Int64
	logger   *logging.Logger
}

// NewClient creates a client sending requests through transport.
func NewClient(cfg Config, transport http.RoundTripper) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// No client-wide timeout: it would also cover retry waits. The retry
	// transport bounds each attempt instead.
	return &Client{
		baseURL:  cfg.BaseURL,
		http:     &http.Client{Transport: transport},
		pageSize: cfg.ItemsPageSize,
		logger:   logging.Default().WithComponent("graph_client"),
	}
}

// Calls returns the number of API requests made so far.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// get performs one GET and classifies the response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*Body, error) {
	target, err := buildURL(c.baseURL, endpoint, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.calls.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s: %w", endpoint, err)
	}
	c.logger.Graph("GET", "endpoint", endpoint, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	return Classify(endpoint, resp.StatusCode, resp.Header.Get("Content-Type"), raw)
}

// Pages walks a paged collection one GET per step. Continuation requests use
// @odata.nextLink verbatim and drop params. Iteration stops at the first error,
// which is yielded once.
func (c *Client) Pages(ctx context.Context, endpoint string, params url.Values) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		next := endpoint
		for next != "" {
			body, err := c.get(ctx, next, params)
			if err != nil {
				yield(nil, err)
				return
			}

			page := &Page{}
			if body != nil {
				if err := body.Decode(page); err != nil {
					yield(nil, fmt.Errorf("decode page of %s: %w", endpoint, err))
					return
				}
			}
			if !yield(page, nil) || !page.HasNext() {
				return
			}
			next, params = page.NextLink, nil
		}
	}
}

// collect buffers every element of a paged collection.
func collect[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	var out []T
	for page, err := range c.Pages(ctx, endpoint, nil) {
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Value {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode element of %s: %w", endpoint, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// GetSiteByRelativeURL resolves a site by hostname and server relative path.
// A 404 is reported as a ResourceNotFoundError.
func (c *Client) GetSiteByRelativeURL(ctx context.Context, hostname, relPath string) (*sharepoint.Site, error) {
	endpoint := siteEndpoint(hostname, relPath)
	body, err := c.get(ctx, endpoint, nil)
	if err != nil {
		if errors.Is(err, KindNotFound) {
			return nil, &extraction.ResourceNotFoundError{
				Kind:     extraction.ResourceSite,
				Location: sharepoint.JoinLocation(hostname, relPath),
				Err:      err,
			}
		}
		return nil, fmt.Errorf("get site: %w", err)
	}

	site := &sharepoint.Site{}
	if body != nil {
		if err := body.Decode(site); err != nil {
			return nil, fmt.Errorf("decode site: %w", err)
		}
	}
	site.Hostname = hostname
	site.RelativePath = relPath
	return site, nil
}

// GetSiteLists returns every list of a site.
func (c *Client) GetSiteLists(ctx context.Context, siteID string) ([]*sharepoint.List, error) {
	lists, err := collect[*sharepoint.List](ctx, c, "sites/"+url.PathEscape(siteID)+"/lists")
	if err != nil {
		return nil, fmt.Errorf("get site lists: %w", err)
	}
	return lists, nil
}

// GetSiteListByName finds a list by internal name, then by display name.
// It returns nil without error when no list matches.
func (c *Client) GetSiteListByName(ctx context.Context, siteID, name string) (*sharepoint.List, error) {
	lists, err := c.GetSiteLists(ctx, siteID)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		if l.Name == name {
			return l, nil
		}
	}
	for _, l := range lists {
		if l.DisplayName == name {
			return l, nil
		}
	}
	return nil, nil
}

// GetListColumns returns the raw column definitions of a list in API order.
func (c *Client) GetListColumns(ctx context.Context, siteID, listID string) ([]sharepoint.Column, error) {
	raw, err := collect[columnJSON](ctx, c, listEndpoint(siteID, listID)+"/columns")
	if err != nil {
		return nil, fmt.Errorf("get list columns: %w", err)
	}
	cols := make([]sharepoint.Column, len(raw))
	for i, col := range raw {
		cols[i] = col.toDomain()
	}
	return cols, nil
}

// ListItemPages streams a list's items one page at a time with fields expanded.
func (c *Client) ListItemPages(ctx context.Context, siteID, listID string) iter.Seq2[[]sharepoint.ItemFields, error] {
	params := url.Values{"expand": {"fields"}}
	if c.pageSize > 0 {
		params.Set("$top", strconv.Itoa(c.pageSize))
	}
	endpoint := listEndpoint(siteID, listID) + "/items"

	return func(yield func([]sharepoint.ItemFields, error) bool) {
		for page, err := range c.Pages(ctx, endpoint, params) {
			if err != nil {
				yield(nil, fmt.Errorf("get list items: %w", err))
				return
			}
			items := make([]sharepoint.ItemFields, 0, len(page.Value))
			for _, raw := range page.Value {
				fields, err := decodeItemFields(raw)
				if err != nil {
					yield(nil, err)
					return
				}
				items = append(items, fields)
			}
			if !yield(items, nil) {
				return
			}
		}
	}
}

func listEndpoint(siteID, listID string) string {
	return "sites/" + url.PathEscape(siteID) + "/lists/" + url.PathEscape(listID)
}
