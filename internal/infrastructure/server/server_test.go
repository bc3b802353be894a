package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/infrastructure/config"
	"github.com/replayio/devtools-sub005/internal/infrastructure/logging"
	"github.com/replayio/devtools-sub005/internal/resolver/snapshot"
	"github.com/replayio/devtools-sub005/internal/sandbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sandbox.PoolSize = 2
	cfg.RateLimit.Enabled = false
	cfg.Logging.Development = true
	return cfg
}

func start(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, s.Shutdown(context.Background()))
	})
	return s, ts
}

type created struct {
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	Root struct {
		ID         string `json:"id"`
		Expandable bool   `json:"expandable"`
	} `json:"root"`
}

func createSession(t *testing.T, base, expression string) created {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"expression": expression})
	resp, err := http.Post(base+"/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out created
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func copyText(t *testing.T, base, sid, nid string) string {
	t.Helper()
	resp, err := http.Get(base + "/sessions/" + sid + "/nodes/" + nid + "/copy")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Text
}

func TestSandboxServer(t *testing.T) {
	_, ts := start(t, testConfig())

	c := createSession(t, ts.URL, `({name: "replay", tags: ["a", "b"]})`)
	assert.True(t, c.Root.Expandable)

	text := copyText(t, ts.URL, c.Session.ID, c.Root.ID)
	assert.JSONEq(t, `{"name": "replay", "tags": ["a", "b"]}`, text)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "inspector_sessions_total 1")
	assert.Contains(t, string(metrics), "go_goroutines")
}

func TestHealthReportsBackend(t *testing.T) {
	_, ts := start(t, testConfig())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	pool, ok := body["sandbox"].(map[string]interface{})
	require.True(t, ok, "%v", body)
	assert.EqualValues(t, 2, pool["size"])
}

func TestLargeResponsesAreCompressed(t *testing.T) {
	_, ts := start(t, testConfig())

	c := createSession(t, ts.URL, `Array.from({length: 90}, (_, i) => "element number " + i)`)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/sessions/"+c.Session.ID+"/nodes/"+c.Root.ID+"/copy", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "element number 89")
}

func TestEventStreamBypassesCompression(t *testing.T) {
	_, ts := start(t, testConfig())

	c := createSession(t, ts.URL, `({a: 1})`)

	header := http.Header{}
	header.Set("Accept-Encoding", "gzip")
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + c.Session.ID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var hello struct {
		Type  string   `json:"type"`
		Roots []string `json:"roots"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, []string{c.Root.ID}, hello.Roots)
}

func TestRemoteModeProxiesProtocol(t *testing.T) {
	// the upstream serves the resolver protocol from its own sandbox
	_, upstream := start(t, testConfig())

	cfg := testConfig()
	cfg.Resolver.Mode = config.ModeRemote
	cfg.Resolver.RemoteURL = upstream.URL
	cfg.Resolver.Timeout = 5 * time.Second
	_, ts := start(t, cfg)

	c := createSession(t, ts.URL, `({nested: {deep: [1, 2, 3]}})`)
	text := copyText(t, ts.URL, c.Session.ID, c.Root.ID)
	assert.JSONEq(t, `{"nested": {"deep": [1, 2, 3]}}`, text)
}

func TestSnapshotMode(t *testing.T) {
	rt, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer rt.Close()

	rec := snapshot.NewRecorder(rt)
	ctx := context.Background()
	root, err := rec.Evaluate(ctx, `({recorded: true, items: [1, 2]})`)
	require.NoError(t, err)
	props, err := rec.FetchProperties(ctx, root.ObjectID, nil)
	require.NoError(t, err)
	for _, p := range props {
		if p.Value.Composite() {
			_, err := rec.FetchProperties(ctx, p.Value.ObjectID, nil)
			require.NoError(t, err)
		}
	}

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, snapshot.SaveFile(path, rec.Snapshot()))

	cfg := testConfig()
	cfg.Resolver.Mode = config.ModeSnapshot
	cfg.Resolver.SnapshotPath = path
	_, ts := start(t, cfg)

	c := createSession(t, ts.URL, `({recorded: true, items: [1, 2]})`)
	text := copyText(t, ts.URL, c.Session.ID, c.Root.ID)
	assert.JSONEq(t, `{"recorded": true, "items": [1, 2]}`, text)
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Resolver.Mode = config.ModeSnapshot
	_, err := NewServer(cfg, logging.NewNop())
	assert.Error(t, err)

	cfg.Resolver.SnapshotPath = filepath.Join(t.TempDir(), "missing.cbor")
	_, err = NewServer(cfg, logging.NewNop())
	assert.ErrorContains(t, err, "failed to load snapshot")
}
