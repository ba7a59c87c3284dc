package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sakimotor/TranslationFramework2/internal/config"
	"github.com/Sakimotor/TranslationFramework2/internal/jobs"
	"github.com/Sakimotor/TranslationFramework2/internal/persistence"
	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/internal/testsupport"
)

const testAsset = "ev01/cmn.bin"

type testServer struct {
	srv   *Server
	cfg   *config.Config
	slots []int64
	root  string
}

func newTestServer(t *testing.T, opts ...Option) testServer {
	t.Helper()

	root := t.TempDir()
	gameDir := filepath.Join(root, "game")
	b := testsupport.NewAssetBuilder().
		Filler(4, 0x11).
		LongBlock(32, []string{"Hello"}, []string{"World"}).
		ShortBlock(16, 2, []string{"Yes"}, nil)
	testsupport.WriteAsset(t, gameDir, testAsset, b.Bytes())

	cfg := &config.Config{
		Paths: config.PathsConfig{
			GameDir:    gameDir,
			ChangesDir: filepath.Join(root, "changes"),
			OutputDir:  filepath.Join(root, "out"),
			DataDir:    filepath.Join(root, "data"),
		},
		Format: config.FormatConfig{Encoding: "utf-8", LongWidth: 32, ShortWidth: 16},
		Rebuild: config.RebuildConfig{
			Patterns:    []string{"cmn.bin"},
			Concurrency: 1,
			CronExpr:    "0 * * * *",
		},
	}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := service.NewProjectService(cfg, store, cron.New())
	require.NoError(t, err)

	return testServer{
		srv:   NewServer(svc, cfg, opts...),
		cfg:   cfg,
		slots: b.SlotOffsets(),
		root:  root,
	}
}

func (ts testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, target, &payload)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func entriesURL(asset string) string {
	return "/api/entries?asset=" + url.QueryEscape(asset)
}

func TestServer_ListAssets(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/assets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var assets []assetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, filepath.FromSlash(testAsset), assets[0].Path)
	assert.Equal(t, 3, assets[0].Total)
	assert.False(t, assets[0].HasOverlay)

	rec = ts.do(t, http.MethodPost, "/api/assets", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_GetEntries(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, entriesURL(testAsset), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp entriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.FromOverlay)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, ts.slots[0], resp.Entries[0].Offset)
	assert.Equal(t, "Hello", resp.Entries[0].Original)
	assert.Equal(t, "long", resp.Entries[0].Kind)
	assert.Equal(t, 16, resp.Entries[2].MaxLength)
	assert.Equal(t, 3, resp.Stats.Total)
}

func TestServer_GetEntriesErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/entries", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, entriesURL("ev09/cmn.bin"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, entriesURL("../outside/cmn.bin"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PutEntriesSavesOverlay(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"translations": []map[string]any{
			{"offset": ts.slots[1], "translation": "Monde"},
		},
	}
	rec := ts.do(t, http.MethodPut, entriesURL(testAsset), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp entriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.FromOverlay)
	assert.Equal(t, "Monde", resp.Entries[1].Translation)
	assert.Equal(t, 1, resp.Stats.Translated)
	assert.Equal(t, 0, resp.Stats.Unsaved)

	// a fresh read comes from the overlay
	rec = ts.do(t, http.MethodGet, entriesURL(testAsset), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.FromOverlay)
	assert.Equal(t, "Monde", resp.Entries[1].Translation)
}

func TestServer_PutEmptyTranslationRestoresOriginal(t *testing.T) {
	ts := newTestServer(t)

	put := func(text string) entriesResponse {
		t.Helper()
		body := map[string]any{
			"translations": []map[string]any{
				{"offset": ts.slots[1], "translation": text},
			},
		}
		rec := ts.do(t, http.MethodPut, entriesURL(testAsset), body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp entriesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := put("Monde")
	assert.Equal(t, 1, resp.Stats.Translated)

	resp = put("")
	assert.Equal(t, "World", resp.Entries[1].Translation)
	assert.Equal(t, 0, resp.Stats.Translated)

	rec := ts.do(t, http.MethodPost, "/api/rebuild", map[string]any{"asset": testAsset})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out, err := os.ReadFile(filepath.Join(ts.cfg.Paths.OutputDir, testAsset))
	require.NoError(t, err)
	assert.Equal(t, "World", string(bytes.TrimRight(out[ts.slots[1]:ts.slots[1]+32], "\x00")))
}

func TestServer_PutEntriesRejectsOverflow(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"translations": []map[string]any{
			{"offset": ts.slots[2], "translation": strings.Repeat("x", 17)},
		},
	}
	rec := ts.do(t, http.MethodPut, entriesURL(testAsset), body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp["applied"])
	assert.Contains(t, resp["error"], "17")

	var entries entriesResponse
	rec = ts.do(t, http.MethodGet, entriesURL(testAsset), nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.False(t, entries.FromOverlay)
}

func TestServer_PutEntriesUnknownOffset(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"translations": []map[string]any{
			{"offset": 3, "translation": "nope"},
		},
	}
	rec := ts.do(t, http.MethodPut, entriesURL(testAsset), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, entriesURL(testAsset), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RebuildAndRuns(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Run   jobs.RebuildRun `json:"run"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, jobs.StatusSuccess, resp.Run.Status)
	assert.Equal(t, jobs.SourceManual, resp.Run.Source)
	assert.Empty(t, resp.Error)
	assert.FileExists(t, filepath.Join(ts.cfg.Paths.OutputDir, filepath.FromSlash(testAsset)))

	rec = ts.do(t, http.MethodPost, "/api/rebuild", map[string]any{"asset": testAsset})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/runs?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []jobs.RebuildRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	rec = ts.do(t, http.MethodGet, "/api/runs", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = ts.do(t, http.MethodGet, "/api/runs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RebuildChangedSkipsUnedited(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/rebuild", map[string]any{"changed": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run jobs.RebuildRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Run.Counts()[jobs.StatusSuccess])
}

func TestServer_Settings(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var project config.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	assert.Equal(t, 32, project.LongWidth)
	assert.Equal(t, "utf-8", project.Encoding)

	rec = ts.do(t, http.MethodPut, "/api/settings", config.Project{Concurrency: 4})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_SettingsWritesProjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmntrans.toml")
	ts := newTestServer(t, WithProjectFile(path))

	rec := ts.do(t, http.MethodPut, "/api/settings", config.Project{CronExpr: "every minute"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	rec = ts.do(t, http.MethodPut, "/api/settings", config.Project{Concurrency: 4, CronExpr: "*/5 * * * *"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved, err := config.LoadProjectFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Concurrency)
	assert.Equal(t, "*/5 * * * *", saved.CronExpr)
}

func TestServer_RunStream(t *testing.T) {
	ts := newTestServer(t, WithStreamInterval(10*time.Millisecond))

	rec := ts.do(t, http.MethodPost, "/api/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/api/runs/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	fields := map[string]string{}
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		key, value, _ := strings.Cut(line, ": ")
		fields[key] = value
	}

	assert.Equal(t, "runs", fields["event"])
	var runs []jobs.RebuildRun
	require.NoError(t, json.Unmarshal([]byte(fields["data"]), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, jobs.StatusSuccess, runs[0].Status)
	assert.Equal(t, runs[0].ID, fields["id"])
}
