package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/protocol"
	"github.com/replayio/devtools-sub005/internal/resolver/cdp"
	"github.com/replayio/devtools-sub005/internal/resolver/snapshot"
	"github.com/replayio/devtools-sub005/internal/sandbox"
	"github.com/replayio/devtools-sub005/internal/session"
)

// sessionStatus maps inspector and session errors onto status codes
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrNodeNotFound),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, inspector.ErrNodeDetached):
		return http.StatusNotFound
	case errors.Is(err, inspector.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, inspector.ErrGetterEvaluationFailed),
		errors.Is(err, session.ErrEvaluation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, inspector.ErrRemoteFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// protocolStatus maps backend errors onto the status codes of the
// resolver protocol
func protocolStatus(err error) int {
	switch {
	case errors.Is(err, protocol.ErrBadRange):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrNotFound),
		errors.Is(err, sandbox.ErrUnknownObject),
		errors.Is(err, snapshot.ErrUnknownObject),
		errors.Is(err, snapshot.ErrUnknownGetter),
		errors.Is(err, snapshot.ErrUnknownExpression),
		errors.Is(err, cdp.ErrUnknownObject):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrScriptFailed),
		errors.Is(err, sandbox.ErrScriptFailed),
		errors.Is(err, snapshot.ErrGetterThrew),
		errors.Is(err, cdp.ErrScriptFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
