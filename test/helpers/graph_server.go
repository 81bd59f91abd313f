package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// FakeGraph is an in-process stand-in for the Graph sites/lists/items API and
// the OAuth token endpoint. Collections are paged with $skiptoken offsets.
type FakeGraph struct {
	Server *httptest.Server

	mu            sync.Mutex
	pageSize      int
	sites         map[string]map[string]any   // "hostname/relpath" -> site resource
	lists         map[string][]map[string]any // site id -> list resources
	columns       map[string][]map[string]any // list id -> column definitions
	items         map[string][]map[string]any // list id -> item resources
	accessToken   string
	refreshTokens map[string]bool
	issued        int
	hits          map[string]int
}

// NewFakeGraph starts a fake server that is closed with the test.
func NewFakeGraph(t testing.TB) *FakeGraph {
	f := &FakeGraph{
		pageSize:      100,
		sites:         map[string]map[string]any{},
		lists:         map[string][]map[string]any{},
		columns:       map[string][]map[string]any{},
		items:         map[string][]map[string]any{},
		refreshTokens: map[string]bool{},
		hits:          map[string]int{},
	}

	r := chi.NewRouter()
	r.Post("/oauth2/v2.0/token", f.handleToken)
	r.Route("/v1.0", func(r chi.Router) {
		r.Use(f.requireBearer)
		r.Get("/sites/{siteID}/lists", f.handleLists)
		r.Get("/sites/{siteID}/lists/{listID}/columns", f.handleColumns)
		r.Get("/sites/{siteID}/lists/{listID}/items", f.handleItems)
		r.Get("/sites/*", f.handleSite)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the Graph root to configure clients with.
func (f *FakeGraph) BaseURL() string { return f.Server.URL + "/v1.0/" }

// TokenURL is the OAuth token endpoint.
func (f *FakeGraph) TokenURL() string { return f.Server.URL + "/oauth2/v2.0/token" }

// SetPageSize sets how many elements each collection page carries.
func (f *FakeGraph) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// AddSite registers a site reachable at hostname + relPath.
func (f *FakeGraph) AddSite(hostname, relPath, id, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimSuffix(hostname+"/"+strings.Trim(relPath, "/"), "/")
	f.sites[key] = map[string]any{
		"id":          id,
		"name":        displayName,
		"displayName": displayName,
		"webUrl":      "https://" + key,
	}
}

// AddList registers a list resource on a site.
func (f *FakeGraph) AddList(siteID string, list map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[siteID] = append(f.lists[siteID], list)
}

// SetColumns sets the column definitions of a list.
func (f *FakeGraph) SetColumns(listID string, cols ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[listID] = cols
}

// AddItem appends an item with the given fields to a list.
func (f *FakeGraph) AddItem(listID, itemID string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[listID] = append(f.items[listID], map[string]any{"id": itemID, "fields": fields})
}

// AcceptRefreshToken makes the token endpoint accept rt once.
func (f *FakeGraph) AcceptRefreshToken(rt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshTokens[rt] = true
}

// RequireAccessToken enables bearer checking on Graph routes.
func (f *FakeGraph) RequireAccessToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = token
}

// ExpireAccessToken invalidates the current access token so the next Graph
// call answers 401.
func (f *FakeGraph) ExpireAccessToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = "expired-" + strconv.Itoa(f.issued)
}

// Hits returns how many requests a route kind ("site", "lists", "columns",
// "items", "token") received.
func (f *FakeGraph) Hits(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[kind]
}

func (f *FakeGraph) hit(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[kind]++
}

func (f *FakeGraph) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		want := f.accessToken
		f.mu.Unlock()
		if want != "" && r.Header.Get("Authorization") != "Bearer "+want {
			writeJSON(w, http.StatusUnauthorized, graphError("InvalidAuthenticationToken", "Access token has expired."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGraph) handleToken(w http.ResponseWriter, r *http.Request) {
	f.hit("token")
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	rt := r.PostForm.Get("refresh_token")
	if r.PostForm.Get("grant_type") != "refresh_token" || !f.refreshTokens[rt] {
		f.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	delete(f.refreshTokens, rt)
	f.issued++
	access := fmt.Sprintf("access-%d", f.issued)
	refresh := fmt.Sprintf("refresh-%d", f.issued)
	f.refreshTokens[refresh] = true
	f.accessToken = access
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":    "Bearer",
		"scope":         r.PostForm.Get("scope"),
		"expires_in":    3600,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (f *FakeGraph) handleSite(w http.ResponseWriter, r *http.Request) {
	f.hit("site")
	ref := chi.URLParam(r, "*")
	hostname, relPath, _ := strings.Cut(ref, ":")
	key := strings.TrimSuffix(hostname+"/"+strings.Trim(relPath, "/"), "/")

	f.mu.Lock()
	site, ok := f.sites[key]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, graphError("itemNotFound", "Requested site could not be found"))
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (f *FakeGraph) handleLists(w http.ResponseWriter, r *http.Request) {
	f.hit("lists")
	f.mu.Lock()
	lists := f.lists[chi.URLParam(r, "siteID")]
	f.mu.Unlock()
	f.writePage(w, r, lists)
}

func (f *FakeGraph) handleColumns(w http.ResponseWriter, r *http.Request) {
	f.hit("columns")
	f.mu.Lock()
	cols, ok := f.columns[chi.URLParam(r, "listID")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, graphError("itemNotFound", "The requested resource does not exist."))
		return
	}
	f.writePage(w, r, cols)
}

func (f *FakeGraph) handleItems(w http.ResponseWriter, r *http.Request) {
	f.hit("items")
	if r.URL.Query().Get("expand") != "fields" {
		writeJSON(w, http.StatusBadRequest, graphError("invalidRequest", "expand=fields expected"))
		return
	}
	f.mu.Lock()
	items := f.items[chi.URLParam(r, "listID")]
	f.mu.Unlock()
	f.writePage(w, r, items)
}

// writePage serves one page of values, linking the next one while any remain.
func (f *FakeGraph) writePage(w http.ResponseWriter, r *http.Request, values []map[string]any) {
	f.mu.Lock()
	size := f.pageSize
	f.mu.Unlock()

	q := r.URL.Query()
	if top, err := strconv.Atoi(q.Get("$top")); err == nil && top > 0 {
		size = top
	}
	offset, _ := strconv.Atoi(q.Get("$skiptoken"))

	end := min(offset+size, len(values))
	chunk := make([]map[string]any, 0, size)
	chunk = append(chunk, values[min(offset, end):end]...)
	page := map[string]any{"value": chunk}
	if end < len(values) {
		next := url.Values{}
		for k, vs := range q {
			next[k] = vs
		}
		next.Set("$skiptoken", strconv.Itoa(end))
		page["@odata.nextLink"] = f.Server.URL + r.URL.Path + "?" + next.Encode()
	}
	writeJSON(w, http.StatusOK, page)
}

func graphError(code, message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": message}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
