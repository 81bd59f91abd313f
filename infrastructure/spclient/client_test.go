package spclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spextract/domain/extraction"
	"spextract/domain/sharepoint"
	"spextract/test/helpers"
)

func newTestClient(t *testing.T, f *helpers.FakeGraph, pageSize int) *Client {
	t.Helper()
	return NewClient(Config{BaseURL: f.BaseURL(), ItemsPageSize: pageSize}, NewRetryTransport(nil, fastRetryConfig(2)))
}

func TestPages_FollowsNextLinkAcrossPages(t *testing.T) {
	tests := []struct {
		name      string
		lists     int
		pageSize  int
		wantPages int
	}{
		{"empty collection", 0, 2, 1},
		{"single page", 2, 5, 1},
		{"exact multiple", 4, 2, 2},
		{"remainder page", 5, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := helpers.NewFakeGraph(t)
			f.SetPageSize(tt.pageSize)
			for i := 0; i < tt.lists; i++ {
				f.AddList("site-1", map[string]any{"id": fmt.Sprintf("list-%d", i), "name": fmt.Sprintf("L%d", i)})
			}
			client := newTestClient(t, f, 0)

			pages, elements := 0, 0
			for page, err := range client.Pages(context.Background(), "sites/site-1/lists", url.Values{"$select": {"id,name"}}) {
				require.NoError(t, err)
				pages++
				elements += len(page.Value)
			}

			assert.Equal(t, tt.wantPages, pages)
			assert.Equal(t, tt.lists, elements)
			assert.Equal(t, tt.wantPages, f.Hits("lists"))
			assert.Equal(t, int64(tt.wantPages), client.Calls())
		})
	}
}

func TestPages_StopsWhenConsumerBreaks(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.SetPageSize(1)
	for i := 0; i < 3; i++ {
		f.AddList("site-1", map[string]any{"id": fmt.Sprintf("list-%d", i)})
	}
	client := newTestClient(t, f, 0)

	for _, err := range client.Pages(context.Background(), "sites/site-1/lists", nil) {
		require.NoError(t, err)
		break
	}
	assert.Equal(t, 1, f.Hits("lists"))
}

func TestGetSiteByRelativeURL(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.AddSite("contoso.sharepoint.com", "/sites/Team", "site-team", "Team")
	f.AddSite("contoso.sharepoint.com", "", "site-root", "Root")
	client := newTestClient(t, f, 0)

	site, err := client.GetSiteByRelativeURL(context.Background(), "contoso.sharepoint.com", "/sites/Team")
	require.NoError(t, err)
	assert.Equal(t, "site-team", site.ID)
	assert.Equal(t, "contoso.sharepoint.com/sites/Team", site.Location())

	root, err := client.GetSiteByRelativeURL(context.Background(), "contoso.sharepoint.com", "")
	require.NoError(t, err)
	assert.Equal(t, "site-root", root.ID)

	_, err = client.GetSiteByRelativeURL(context.Background(), "contoso.sharepoint.com", "/sites/Missing")
	require.Error(t, err)
	assert.True(t, extraction.IsResourceNotFound(err))
	assert.ErrorIs(t, err, KindNotFound)
	assert.Contains(t, err.Error(), "contoso.sharepoint.com/sites/Missing")
}

func TestGetSiteListByName(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.SetPageSize(1)
	f.AddList("site-1", map[string]any{"id": "a", "name": "Tasks", "displayName": "Team Tasks"})
	f.AddList("site-1", map[string]any{"id": "b", "name": "Issues", "displayName": "Tasks"})
	f.AddList("site-1", map[string]any{"id": "c", "name": "Docs", "displayName": "Documents",
		"createdBy": map[string]any{"user": map[string]any{"displayName": "Ada"}}})
	client := newTestClient(t, f, 0)

	tests := []struct {
		name   string
		lookup string
		wantID string
	}{
		{"internal name wins", "Tasks", "a"},
		{"display name fallback", "Documents", "c"},
		{"no match", "Nope", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := client.GetSiteListByName(context.Background(), "site-1", tt.lookup)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, list)
				return
			}
			require.NotNil(t, list)
			assert.Equal(t, tt.wantID, list.ID)
		})
	}

	docs, err := client.GetSiteListByName(context.Background(), "site-1", "Docs")
	require.NoError(t, err)
	assert.Equal(t, "Ada", docs.CreatorDisplayName())
}

func TestGetListColumns_KeepsOrderAcrossPages(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.SetPageSize(2)
	f.SetColumns("list-1",
		map[string]any{"name": "Title", "displayName": "Title"},
		map[string]any{"name": "ContentType", "displayName": "Content Type"},
		map[string]any{"name": "Owner", "displayName": "Owner", "personOrGroup": map[string]any{"allowMultipleSelection": false}},
	)
	client := newTestClient(t, f, 0)

	cols, err := client.GetListColumns(context.Background(), "site-1", "list-1")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"Title", "ContentType", "Owner"}, []string{cols[0].Name, cols[1].Name, cols[2].Name})
	assert.True(t, cols[2].IsSinglePersonOrGroup())

	_, err = client.GetListColumns(context.Background(), "site-1", "missing")
	assert.ErrorIs(t, err, KindNotFound)
}

func TestListItemPages_StreamsFields(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	for i := 1; i <= 5; i++ {
		f.AddItem("list-1", fmt.Sprintf("%d", i), map[string]any{
			"Title": fmt.Sprintf("item %d", i),
			"Count": 1.5,
			"Tags":  []string{"a", "b"},
		})
	}
	client := newTestClient(t, f, 2)

	var pages [][]sharepoint.ItemFields
	for items, err := range client.ListItemPages(context.Background(), "site-1", "list-1") {
		require.NoError(t, err)
		pages = append(pages, items)
	}

	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 2)
	assert.Len(t, pages[2], 1)

	first := pages[0][0]
	assert.Equal(t, "1", first[sharepoint.ItemIDField])
	assert.Equal(t, "item 1", first["Title"])
	assert.Equal(t, json.Number("1.5"), first["Count"])
	assert.Equal(t, []any{"a", "b"}, first["Tags"])
}

func TestListItemPages_YieldsClassifiedError(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.RequireAccessToken("valid")
	client := newTestClient(t, f, 0)

	var errs []error
	for _, err := range client.ListItemPages(context.Background(), "site-1", "list-1") {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], KindUnauthorized)
}

func TestClient_RefreshesThroughTokenGate(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.AcceptRefreshToken("configured")
	f.AddList("site-1", map[string]any{"id": "a", "name": "Tasks"})

	retry := NewRetryTransport(nil, fastRetryConfig(2))
	exchanger := NewOAuthExchanger(f.TokenURL(), nil)
	cred := extraction.Credential{ClientID: "app", ClientSecret: "secret", Scope: extraction.DefaultScope}

	gate, err := Authenticate(context.Background(), retry, exchanger, cred, "stale", "configured")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", gate.Credential().RefreshToken)

	f.ExpireAccessToken()
	lists, err := NewClient(Config{BaseURL: f.BaseURL()}, gate).GetSiteLists(context.Background(), "site-1")
	require.NoError(t, err)
	require.Len(t, lists, 1)

	assert.Equal(t, 1, gate.Refreshes())
	assert.Equal(t, "refresh-2", gate.Credential().RefreshToken)
	assert.Equal(t, 3, f.Hits("token"), "stale candidate, configured candidate, one refresh")
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		endpoint string
		params   url.Values
		want     string
	}{
		{"joins relative", "https://graph.microsoft.com/v1.0/", "sites/abc/lists", nil, "https://graph.microsoft.com/v1.0/sites/abc/lists"},
		{"base without slash", "https://graph.microsoft.com/v1.0", "/sites/abc", nil, "https://graph.microsoft.com/v1.0/sites/abc"},
		{"adds params", "https://graph.microsoft.com/v1.0/", "sites/abc/lists/x/items", url.Values{"expand": {"fields"}}, "https://graph.microsoft.com/v1.0/sites/abc/lists/x/items?expand=fields"},
		{"absolute passes through", "https://graph.microsoft.com/v1.0/", "https://graph.microsoft.com/v1.0/sites?$skiptoken=2", url.Values{"expand": {"fields"}}, "https://graph.microsoft.com/v1.0/sites?$skiptoken=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildURL(tt.base, tt.endpoint, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSiteEndpoint(t *testing.T) {
	assert.Equal(t, "sites/contoso.sharepoint.com", siteEndpoint("contoso.sharepoint.com", ""))
	assert.Equal(t, "sites/contoso.sharepoint.com", siteEndpoint("contoso.sharepoint.com", "/"))
	assert.Equal(t, "sites/contoso.sharepoint.com:/sites/Team", siteEndpoint("contoso.sharepoint.com", "/sites/Team/"))
	assert.Equal(t, "sites/contoso.sharepoint.com:/sites/My%20Team", siteEndpoint("contoso.sharepoint.com", "sites/My Team"))
}
