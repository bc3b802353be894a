package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/infrastructure/monitoring"
	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
	"github.com/replayio/devtools-sub005/internal/protocol"
)

// MaxExpressionSize bounds evaluate request bodies
const MaxExpressionSize = 64 * 1024

// ProtocolHandlers serve a backend over the resolver protocol, so that a
// remote resolver in another process can inspect it
type ProtocolHandlers struct {
	backend inspector.Backend
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewProtocolHandlers creates the protocol endpoints for backend
func NewProtocolHandlers(backend inspector.Backend, logger *zap.Logger) *ProtocolHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProtocolHandlers{backend: backend, logger: logger}
}

// WithMetrics records protocol calls
func (h *ProtocolHandlers) WithMetrics(metrics *monitoring.Metrics) *ProtocolHandlers {
	h.metrics = metrics
	return h
}

// Register mounts the protocol routes
func (h *ProtocolHandlers) Register(r gin.IRoutes) {
	r.POST(protocol.EvaluatePath, h.Evaluate)
	r.GET(protocol.Prefix+"/objects/:id/properties", h.Properties)
	r.POST(protocol.Prefix+"/objects/:id/getter", h.Getter)
}

// Evaluate handles POST /protocol/evaluate
func (h *ProtocolHandlers) Evaluate(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "evaluate")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxExpressionSize+1))
	if err != nil || len(body) > MaxExpressionSize {
		h.fail(c, timer, http.StatusBadRequest, "request body too large or unreadable")
		return
	}
	var req protocol.EvaluateRequest
	if err := protocol.Unmarshal(body, &req); err != nil || req.Expression == "" {
		h.fail(c, timer, http.StatusBadRequest, "expression required")
		return
	}

	v, err := h.backend.Evaluate(c.Request.Context(), req.Expression)
	if err != nil {
		h.fail(c, timer, protocolStatus(err), err.Error())
		return
	}
	h.write(c, timer, http.StatusOK, protocol.ValueResponse{Value: &v})
}

// Properties handles GET /protocol/objects/:id/properties
func (h *ProtocolHandlers) Properties(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "properties")

	rng, err := protocol.ParseRange(c.Query("start"), c.Query("end"))
	if err != nil {
		h.fail(c, timer, protocolStatus(err), err.Error())
		return
	}

	props, err := h.backend.FetchProperties(c.Request.Context(), value.ObjectID(c.Param("id")), rng)
	if err != nil {
		h.fail(c, timer, protocolStatus(err), err.Error())
		return
	}
	if props == nil {
		props = []value.PropertyDescriptor{}
	}
	h.write(c, timer, http.StatusOK, protocol.PropertiesResponse{Properties: props})
}

// Getter handles POST /protocol/objects/:id/getter
func (h *ProtocolHandlers) Getter(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "getter")

	v, err := h.backend.InvokeGetter(c.Request.Context(), value.ObjectID(c.Param("id")))
	if err != nil {
		status := protocolStatus(err)
		if status == http.StatusUnprocessableEntity {
			h.write(c, timer, status, protocol.ValueResponse{Error: err.Error()})
			return
		}
		h.fail(c, timer, status, err.Error())
		return
	}
	h.write(c, timer, http.StatusOK, protocol.ValueResponse{Value: &v})
}

func (h *ProtocolHandlers) fail(c *gin.Context, timer *monitoring.Timer, status int, msg string) {
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Protocol call failed",
			zap.String("path", c.FullPath()),
			zap.String("id", c.Param("id")),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	}
	h.write(c, timer, status, protocol.ErrorResponse{Error: msg})
}

// write encodes with sonic, matching the client's decoder
func (h *ProtocolHandlers) write(c *gin.Context, timer *monitoring.Timer, status int, body interface{}) {
	data, err := protocol.Marshal(body)
	if err != nil {
		h.logger.Error("Failed to encode protocol response", zap.Error(err))
		status = http.StatusInternalServerError
		data = []byte(`{"error":"encoding failed"}`)
	}
	timer.Stop(strconv.Itoa(status))
	c.Data(status, "application/json; charset=utf-8", data)
}
