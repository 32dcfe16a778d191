package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/domain/fragment"
	"github.com/vitrinehq/vitrine/internal/infrastructure/logging"
	"github.com/vitrinehq/vitrine/internal/infrastructure/monitoring"
	"github.com/vitrinehq/vitrine/internal/shared/id"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced by the deployment proxy
	},
}

// Handler upgrades renderer connections and serves one session per
// connection.
type Handler struct {
	fragments *fragment.Manager
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	scrub     *bluemonday.Policy
}

// NewHandler creates a websocket handler
func NewHandler(fragments *fragment.Manager, logger *logging.Logger) *Handler {
	return &Handler{
		fragments: fragments,
		logger:    logger,
		scrub:     bluemonday.StrictPolicy(),
	}
}

// WithMetrics adds metrics tracking to the handler
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleConnection upgrades the request and serves the session until the
// renderer disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessID := id.NewSessionID().String()
	s := &session{
		id:       sessID,
		conn:     conn,
		handler:  h,
		logger:   h.logger.With(zap.String("session_id", sessID)),
		attached: make(map[string]chan struct{}),
	}
	s.run(c.Request.Context())
}
