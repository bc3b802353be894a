package http

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/infrastructure/monitoring"
	"github.com/replayio/devtools-sub005/internal/session"
)

// ExpressionRequest carries an expression to evaluate in a session
type ExpressionRequest struct {
	Expression string `json:"expression" binding:"max=65536"`
}

// Handlers contains the inspector HTTP handlers
type Handlers struct {
	sessions *session.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	mu     sync.RWMutex
	checks map[string]func() interface{}
}

// NewHandlers creates a new handler set
func NewHandlers(sessions *session.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		checks:   make(map[string]func() interface{}),
	}
}

// AddHealthDetail adds a named section to the health report
func (h *Handlers) AddHealthDetail(name string, fn func() interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

// Register mounts the health and session routes
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	s := r.Group("/sessions")
	s.POST("", h.CreateSession)
	s.GET("", h.ListSessions)
	s.GET("/:sid", h.GetSession)
	s.DELETE("/:sid", h.DeleteSession)
	s.POST("/:sid/roots", h.AddRoot)
	s.GET("/:sid/nodes/:nid", h.GetNode)
	s.DELETE("/:sid/nodes/:nid", h.TeardownNode)
	s.POST("/:sid/nodes/:nid/expand", h.ExpandNode)
	s.POST("/:sid/nodes/:nid/collapse", h.CollapseNode)
	s.POST("/:sid/nodes/:nid/getter", h.InvokeGetter)
	s.GET("/:sid/nodes/:nid/copy", h.CopyNode)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":   "healthy",
		"sessions": h.sessions.Stats(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}

	h.mu.RLock()
	for name, fn := range h.checks {
		body[name] = fn()
	}
	h.mu.RUnlock()

	c.JSON(http.StatusOK, body)
}

// CreateSession opens a session, evaluating the optional expression as its
// first root
func (h *Handlers) CreateSession(c *gin.Context) {
	var req ExpressionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	s, root, err := h.sessions.Create(c.Request.Context(), req.Expression)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncSessionsTotal()
		h.metrics.SetSessionsActive(h.sessions.Count())
	}

	body := gin.H{"session": s.Info()}
	if root != nil {
		body["root"] = session.Describe(root)
	}
	c.JSON(http.StatusCreated, body)
}

// ListSessions lists the live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.sessions.List(),
		"stats":    h.sessions.Stats(),
	})
}

// GetSession returns a session with its root nodes
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": s.Info(),
		"roots":   session.DescribeAll(s.Roots()),
	})
}

// DeleteSession closes a session and tears down its nodes
func (h *Handlers) DeleteSession(c *gin.Context) {
	sid := c.Param("sid")
	if err := h.sessions.Delete(sid); err != nil {
		h.fail(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.SetSessionsActive(h.sessions.Count())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sid})
}

// AddRoot evaluates an expression as a new root of the session
func (h *Handlers) AddRoot(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req ExpressionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Expression == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expression required"})
		return
	}

	root, err := s.Evaluate(c.Request.Context(), req.Expression)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"node": session.Describe(root)})
}

// GetNode returns one node
func (h *Handlers) GetNode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	n, err := s.Node(c.Param("nid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node": session.Describe(n)})
}

// ExpandNode loads and opens a node
func (h *Handlers) ExpandNode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	nid := c.Param("nid")

	children, err := s.Expand(c.Request.Context(), nid)
	if err != nil {
		body := gin.H{"error": err.Error()}
		if n, lookupErr := s.Node(nid); lookupErr == nil {
			body["node"] = session.Describe(n)
		}
		c.JSON(sessionStatus(err), body)
		return
	}

	n, err := s.Node(nid)
	if err != nil {
		// Torn down while loading
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"node":     session.Describe(n),
		"children": session.DescribeAll(children),
	})
}

// CollapseNode closes a node, keeping its children
func (h *Handlers) CollapseNode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	n, err := s.Collapse(c.Param("nid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node": session.Describe(n)})
}

// InvokeGetter runs the getter behind a node
func (h *Handlers) InvokeGetter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	n, err := s.InvokeGetter(c.Request.Context(), c.Param("nid"))
	if err != nil {
		body := gin.H{"error": err.Error()}
		if n != nil {
			body["node"] = session.Describe(n)
		}
		c.JSON(sessionStatus(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node": session.Describe(n)})
}

// TeardownNode detaches a node and its subtree
func (h *Handlers) TeardownNode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	nid := c.Param("nid")
	if err := s.Teardown(nid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "node": nid})
}

// CopyNode serializes a node canonically
func (h *Handlers) CopyNode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	depth := 0
	if raw := c.Query("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a positive integer"})
			return
		}
		depth = d
	}

	text, err := s.Copy(c.Request.Context(), c.Param("nid"), depth)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (h *Handlers) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := sessionStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Inspector request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
