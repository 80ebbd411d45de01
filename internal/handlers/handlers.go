package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/gluk-w/webtail/internal/broadcast"
	"github.com/gluk-w/webtail/internal/logutil"
	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/sse"
	"github.com/gluk-w/webtail/internal/supervisor"
)

// readLimit bounds one inbound relay frame.
const readLimit = 4 * 1024 * 1024

// API serves the relay server's HTTP surface over one shared registry.
type API struct {
	Registry   *broadcast.Registry
	Supervisor *supervisor.Supervisor
	Gateway    *sse.Gateway

	logger *zap.SugaredLogger
}

func New(registry *broadcast.Registry, sup *supervisor.Supervisor, gw *sse.Gateway, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &API{Registry: registry, Supervisor: sup, Gateway: gw, logger: logger}
}

func (a *API) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from webtail!"})
}

// Applications lists the identities with a connected producer.
func (a *API) Applications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Registry.Applications())
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"applications": a.Registry.Len(),
	})
}

// Stream is the SSE endpoint: GET /api/sse?application=<identity json>.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("application")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing application parameter")
		return
	}
	id, err := message.ParseIdentity(raw)
	if err != nil {
		a.logger.Debugw("bad stream request", "application", logutil.Sanitize(raw), "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid application: %v", err))
		return
	}

	stream, err := a.Gateway.Open(id)
	if errors.Is(err, broadcast.ErrNotRegistered) {
		writeError(w, http.StatusNotFound, "Application not registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer stream.Close()

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	if err := stream.Serve(r.Context(), w); err != nil {
		a.logger.Debugw("event stream ended", "application", id.String(), "error", err)
	}
}

// Relay upgrades a client session. The Application header is checked
// before the upgrade so a bad handshake never creates a channel.
func (a *API) Relay(w http.ResponseWriter, r *http.Request) {
	id, err := supervisor.IdentityFromHeader(r.Header)
	if err != nil {
		a.logger.Infow("rejected relay handshake",
			"remote", r.RemoteAddr,
			"header", logutil.Sanitize(r.Header.Get(supervisor.HeaderApplication)),
			"error", err)
	}
	switch {
	case errors.Is(err, supervisor.ErrMissingIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, supervisor.ErrInvalidIdentity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Warnw("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	if err := a.Supervisor.Serve(r.Context(), conn, id); err != nil {
		a.logger.Infow("relay session ended", "application", id.String(), "error", err)
		conn.Close(websocket.StatusGoingAway, "session ended")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
