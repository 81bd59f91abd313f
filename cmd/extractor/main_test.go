package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spextract/database"
	"spextract/domain/extraction"
	"spextract/infrastructure/config"
	"spextract/infrastructure/repositories"
	"spextract/infrastructure/serialization"
	"spextract/infrastructure/spclient"
	"spextract/infrastructure/tokenstore"
	"spextract/logging"
	"spextract/test/helpers"
	"spextract/test/mocks"
)

const testJob = `
parameters:
  base_host_name: contoso.sharepoint.com
  lists:
    - site_url_rel_path: /sites/Team
      list_name: Tasks
      load_setup:
        result_table_name: tasks
authorization:
  app_key: app
  app_secret: secret
  refresh_token: configured
`

func quietLogger() *logging.Logger {
	return logging.NewLoggerWithWriter(logging.DefaultConfig(), io.Discard)
}

func testAppConfig(t *testing.T, f *helpers.FakeGraph) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()

	retry := spclient.DefaultRetryConfig()
	retry.MaxRetries = 1
	retry.InitialInterval = time.Millisecond
	retry.MaxInterval = 5 * time.Millisecond
	retry.AttemptTimeout = 5 * time.Second

	db := database.DefaultConfig()
	db.Path = filepath.Join(dir, "state.db")

	return &config.AppConfig{
		ConfigPath:   filepath.Join(dir, "config.yaml"),
		DataDir:      dir,
		StateBackend: config.StateBackendSQLite,
		StateKey:     "test",
		Graph: &config.GraphConfig{
			BaseURL:  f.BaseURL(),
			TokenURL: f.TokenURL(),
			Retry:    retry,
		},
		Database: &db,
		Logging:  logging.DefaultConfig(),
	}
}

func seedTasks(f *helpers.FakeGraph) {
	f.AddSite("contoso.sharepoint.com", "/sites/Team", "site-1", "Team")
	f.AddList("site-1", map[string]any{
		"id":          "list-1",
		"name":        "Tasks",
		"displayName": "Tasks",
		"webUrl":      "https://contoso.sharepoint.com/sites/Team/Lists/Tasks",
		"createdBy":   map[string]any{"user": map[string]any{"displayName": "Ada"}},
	})
	f.SetColumns("list-1",
		map[string]any{"name": "Title", "displayName": "Title"},
		map[string]any{"name": "ID", "displayName": "ID"},
		map[string]any{"name": "ContentType", "displayName": "Content Type"},
	)
	f.AddItem("list-1", "1", map[string]any{"Title": "Plan"})
}

func TestRun_WritesTablesAndRotatesToken(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	seedTasks(f)
	f.AcceptRefreshToken("configured")

	cfg := testAppConfig(t, f)
	require.NoError(t, os.WriteFile(cfg.ConfigPath, []byte(testJob), 0o600))

	require.NoError(t, run(context.Background(), cfg, quietLogger()))

	out := filepath.Join(cfg.DataDir, "out", "tables")
	tasks, err := os.ReadFile(filepath.Join(out, "tasks_data.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Plan,1,list-1\n", string(tasks))

	raw, err := os.ReadFile(filepath.Join(out, "tasks_data.csv.manifest"))
	require.NoError(t, err)
	var manifest serialization.TableManifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, []string{"Title", "ID", "list_id"}, manifest.Columns)
	assert.Equal(t, []string{"ID", "list_id"}, manifest.PrimaryKey)
	assert.False(t, manifest.Incremental)

	meta, err := os.ReadFile(filepath.Join(out, extraction.MetadataTableName+".csv"))
	require.NoError(t, err)
	assert.Equal(t, ",,,list-1,,Tasks,https://contoso.sharepoint.com/sites/Team/Lists/Tasks,Tasks,Ada,site-1,tasks\n", string(meta))
	assert.FileExists(t, filepath.Join(out, extraction.MetadataTableName+".csv.manifest"))

	// The configured token was consumed; the second run must use the stored one.
	var logs bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, logging.NewLoggerWithWriter(logging.DefaultConfig(), &logs)))
	assert.Contains(t, logs.String(), "Previous run")
	assert.Contains(t, logs.String(), string(extraction.RunSucceeded))

	db, err := database.New(context.Background(), *cfg.Database, quietLogger())
	require.NoError(t, err)
	defer db.Close()

	stored, err := tokenstore.NewSQLiteStore(db, cfg.StateKey).LoadRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", stored)

	last, err := repositories.NewSqliteRunRepository(db).LastRun(context.Background(), cfg.StateKey)
	require.NoError(t, err)
	assert.Equal(t, extraction.RunSucceeded, last.Status)
	assert.Equal(t, 1, last.Stats.ListsDone)
	assert.Equal(t, 1, last.Stats.RowsWritten)
	assert.Equal(t, int64(4), last.Stats.APICalls)
}

func TestRun_RecordsFailure(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.AcceptRefreshToken("configured")

	cfg := testAppConfig(t, f)
	require.NoError(t, os.WriteFile(cfg.ConfigPath, []byte(testJob), 0o600))

	err := run(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.True(t, extraction.IsResourceNotFound(err))

	_, statErr := os.Stat(filepath.Join(cfg.DataDir, "out", "tables", extraction.MetadataTableName+".csv.manifest"))
	assert.True(t, os.IsNotExist(statErr))

	db, err := database.New(context.Background(), *cfg.Database, quietLogger())
	require.NoError(t, err)
	defer db.Close()

	last, err := repositories.NewSqliteRunRepository(db).LastRun(context.Background(), cfg.StateKey)
	require.NoError(t, err)
	assert.Equal(t, extraction.RunFailed, last.Status)
	assert.Contains(t, last.Error, "contoso.sharepoint.com/sites/Team")
}

func TestAuthenticate_PersistsEveryIssuedToken(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.AcceptRefreshToken("stored")
	f.AddList("site-1", map[string]any{"id": "a", "name": "Tasks"})
	cfg := testAppConfig(t, f)

	store := &mocks.MockTokenStore{}
	store.On("LoadRefreshToken", mock.Anything).Return("stored", nil)
	store.On("SaveRefreshToken", mock.Anything, "refresh-1").Return(nil).Once()
	store.On("SaveRefreshToken", mock.Anything, "refresh-2").Return(nil).Once()

	auth := extraction.Authorization{AppKey: "app", AppSecret: "secret", RefreshToken: "configured"}
	retry := spclient.NewRetryTransport(nil, cfg.Graph.Retry)
	gate, err := authenticate(context.Background(), cfg, auth, store, retry, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, f.Hits("token"), "stored token is tried first")

	f.ExpireAccessToken()
	_, err = spclient.NewClient(spclient.Config{BaseURL: f.BaseURL()}, gate).GetSiteLists(context.Background(), "site-1")
	require.NoError(t, err)

	store.AssertExpectations(t)
}

func TestAuthenticate_StaticTokenSkipsStore(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	f.RequireAccessToken("long-lived")
	f.AddList("site-1", map[string]any{"id": "a", "name": "Tasks"})
	cfg := testAppConfig(t, f)

	store := &mocks.MockTokenStore{}
	retry := spclient.NewRetryTransport(nil, cfg.Graph.Retry)
	gate, err := authenticate(context.Background(), cfg, extraction.Authorization{APIToken: "long-lived"}, store, retry, quietLogger())
	require.NoError(t, err)

	lists, err := spclient.NewClient(spclient.Config{BaseURL: f.BaseURL()}, gate).GetSiteLists(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Len(t, lists, 1)
	assert.Zero(t, f.Hits("token"))
	store.AssertNotCalled(t, "LoadRefreshToken", mock.Anything)
}

func TestAuthenticate_LoadFailure(t *testing.T) {
	f := helpers.NewFakeGraph(t)
	cfg := testAppConfig(t, f)

	store := &mocks.MockTokenStore{}
	store.On("LoadRefreshToken", mock.Anything).Return("", errors.New("disk full"))

	auth := extraction.Authorization{AppKey: "app", AppSecret: "secret", RefreshToken: "configured"}
	_, err := authenticate(context.Background(), cfg, auth, store, spclient.NewRetryTransport(nil, cfg.Graph.Retry), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load refresh token")
	assert.Zero(t, f.Hits("token"))
}

func TestOpenTokenStore_UnknownBackend(t *testing.T) {
	cfg := &config.AppConfig{StateBackend: "etcd"}
	_, _, err := openTokenStore(context.Background(), cfg, nil)

	var cfgErr *extraction.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "STATE_BACKEND", cfgErr.Field)
}
