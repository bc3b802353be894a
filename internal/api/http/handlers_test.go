package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/infrastructure/monitoring"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
	"github.com/replayio/devtools-sub005/internal/session"
	"github.com/replayio/devtools-sub005/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type response struct {
	Error    string             `json:"error"`
	Text     string             `json:"text"`
	Session  session.Info       `json:"session"`
	Root     session.NodeView   `json:"root"`
	Node     session.NodeView   `json:"node"`
	Children []session.NodeView `json:"children"`
	Sessions []session.Info     `json:"sessions"`
}

func call(t *testing.T, router http.Handler, method, path, body string) (int, response) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	var out response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func inspectorRouter(t *testing.T, g *testutil.Graph, opts session.Options) (*gin.Engine, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics(nil)
	opts.Metrics = metrics
	manager := session.NewManager(session.Shared(g), opts)
	t.Cleanup(manager.Close)

	router := gin.New()
	NewHandlers(manager, metrics, nil).Register(router)
	return router, metrics
}

func TestSessionLifecycle(t *testing.T) {
	g, root := testutil.Chain(3)
	g.DefineGlobal("chain", root)
	router, metrics := inspectorRouter(t, g, session.Options{})

	code, created := call(t, router, http.MethodPost, "/sessions", `{"expression": "chain"}`)
	require.Equal(t, http.StatusCreated, code, created.Error)
	sid, rid := created.Session.ID, created.Root.ID
	assert.Equal(t, "collapsed", created.Root.State)
	assert.True(t, created.Root.Expandable)
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveSessions)

	base := "/sessions/" + sid + "/nodes/"

	code, expanded := call(t, router, http.MethodPost, base+rid+"/expand", "")
	require.Equal(t, http.StatusOK, code, expanded.Error)
	assert.Equal(t, "open", expanded.Node.State)
	require.Len(t, expanded.Children, 1)
	child := expanded.Children[0]
	assert.Equal(t, "level-1", child.Key)
	assert.Equal(t, rid, child.ParentID)

	code, got := call(t, router, http.MethodGet, base+child.ID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "collapsed", got.Node.State)

	code, copied := call(t, router, http.MethodGet, base+rid+"/copy?depth=1", "")
	require.Equal(t, http.StatusOK, code, copied.Error)
	assert.Equal(t, `{"level-1": {"level-2": "[[ Truncated ]]"}}`, copied.Text)

	code, copied = call(t, router, http.MethodGet, base+rid+"/copy", "")
	require.Equal(t, http.StatusOK, code, copied.Error)
	assert.Equal(t, `{"level-1": {"level-2": {"level-3": {}}}}`, copied.Text)

	code, collapsed := call(t, router, http.MethodPost, base+rid+"/collapse", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "collapsed", collapsed.Node.State)

	code, _ = call(t, router, http.MethodDelete, base+rid, "")
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, router, http.MethodGet, base+child.ID, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, added := call(t, router, http.MethodPost, "/sessions/"+sid+"/roots", `{"expression": "chain"}`)
	require.Equal(t, http.StatusCreated, code, added.Error)
	assert.NotEqual(t, rid, added.Node.ID)

	code, listed := call(t, router, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, []string{added.Node.ID}, listed.Sessions[0].Roots)

	code, _ = call(t, router, http.MethodDelete, "/sessions/"+sid, "")
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, router, http.MethodGet, "/sessions/"+sid, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveSessions)
}

func TestErrorMapping(t *testing.T) {
	g := testutil.NewGraph()
	g.Define("obj",
		value.Data(value.NameKey("n"), value.Number(1)),
		value.Accessor(value.NameKey("bad"), "get-bad"),
		value.Data(value.NameKey("broken"), value.Object("broken", "Object")),
	)
	g.Define("broken")
	g.Fail("broken", errors.New("connection reset"))
	g.DefineGetter("get-bad", func() (value.RemoteValue, error) {
		return value.RemoteValue{}, errors.New("TypeError: nope")
	})
	g.DefineGlobal("obj", value.Object("obj", "Object"))
	router, _ := inspectorRouter(t, g, session.Options{MaxSessions: 1})

	code, created := call(t, router, http.MethodPost, "/sessions", `{"expression": "obj"}`)
	require.Equal(t, http.StatusCreated, code, created.Error)
	base := "/sessions/" + created.Session.ID + "/nodes/"

	_, expanded := call(t, router, http.MethodPost, base+created.Root.ID+"/expand", "")
	require.Len(t, expanded.Children, 3)
	number, getter, broken := expanded.Children[0], expanded.Children[1], expanded.Children[2]
	assert.Equal(t, "getter", getter.Descriptor)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"expand primitive", http.MethodPost, base + number.ID + "/expand", "", http.StatusBadRequest},
		{"getter on data property", http.MethodPost, base + number.ID + "/getter", "", http.StatusBadRequest},
		{"getter threw", http.MethodPost, base + getter.ID + "/getter", "", http.StatusUnprocessableEntity},
		{"fetch failed", http.MethodPost, base + broken.ID + "/expand", "", http.StatusBadGateway},
		{"unknown node", http.MethodGet, base + "node_missing", "", http.StatusNotFound},
		{"unknown session", http.MethodGet, "/sessions/missing", "", http.StatusNotFound},
		{"bad depth", http.MethodGet, base + created.Root.ID + "/copy?depth=zero", "", http.StatusBadRequest},
		{"bad expression", http.MethodPost, "/sessions/" + created.Session.ID + "/roots", `{"expression": "nope"}`, http.StatusUnprocessableEntity},
		{"missing expression", http.MethodPost, "/sessions/" + created.Session.ID + "/roots", `{}`, http.StatusBadRequest},
		{"session limit", http.MethodPost, "/sessions", `{"expression": "obj"}`, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := call(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code, out.Error)
			assert.NotEmpty(t, out.Error)
		})
	}

	// Failures are recorded on the node
	_, node := call(t, router, http.MethodGet, base+broken.ID, "")
	require.NotNil(t, node.Node.Error)
	assert.Equal(t, "closed", node.Node.State)

	_, node = call(t, router, http.MethodGet, base+getter.ID, "")
	require.NotNil(t, node.Node.Error)
}

func TestGetterResolves(t *testing.T) {
	g := testutil.NewGraph()
	g.Define("obj", value.Accessor(value.NameKey("answer"), "get-answer"))
	g.DefineGetter("get-answer", func() (value.RemoteValue, error) { return value.Number(42), nil })
	g.DefineGlobal("obj", value.Object("obj", "Object"))
	router, _ := inspectorRouter(t, g, session.Options{})

	_, created := call(t, router, http.MethodPost, "/sessions", `{"expression": "obj"}`)
	base := "/sessions/" + created.Session.ID + "/nodes/"
	_, expanded := call(t, router, http.MethodPost, base+created.Root.ID+"/expand", "")
	require.Len(t, expanded.Children, 1)

	code, out := call(t, router, http.MethodPost, base+expanded.Children[0].ID+"/getter", "")
	require.Equal(t, http.StatusOK, code, out.Error)
	assert.Equal(t, float64(42), out.Node.Value.Num)
	assert.Equal(t, 1, g.GetterCount("get-answer"))
}

func TestEmptySession(t *testing.T) {
	router, _ := inspectorRouter(t, testutil.NewGraph(), session.Options{})

	code, created := call(t, router, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, code, created.Error)
	assert.Empty(t, created.Root.ID)
	assert.Empty(t, created.Session.Roots)
}

func TestHealth(t *testing.T) {
	manager := session.NewManager(session.Shared(testutil.NewGraph()), session.Options{})
	h := NewHandlers(manager, monitoring.NewMetrics(nil), nil)
	h.AddHealthDetail("resolver", func() interface{} { return gin.H{"mode": "test"} })

	router := gin.New()
	h.Register(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]interface{}{"mode": "test"}, body["resolver"])
	assert.Contains(t, body, "sessions")
	assert.Contains(t, body, "metrics")
}
