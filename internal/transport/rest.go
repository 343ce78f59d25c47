package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/padsync/collabcore/internal/document"
	"github.com/padsync/collabcore/internal/logging"
	"github.com/padsync/collabcore/internal/metrics"
	"github.com/padsync/collabcore/internal/session"
)

// Router owns the document store, session hub and wiring shared by every
// HTTP/WebSocket handler. It is the gin-facing counterpart of the teacher's
// Server/ServerState.
type Router struct {
	store     *document.Store
	hub       *session.Hub
	metrics   *metrics.Metrics
	startedAt time.Time
}

// NewRouter builds a Router and registers its routes on engine.
func NewRouter(engine *gin.Engine, store *document.Store, hub *session.Hub, m *metrics.Metrics) *Router {
	r := &Router{store: store, hub: hub, metrics: m, startedAt: time.Now()}

	engine.GET("/healthz", r.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/api/stats", r.handleStats)
	engine.GET("/api/document/:id", r.handleGetDocument)
	engine.POST("/api/document", r.handleCreateDocument)
	engine.GET("/ws/:id", r.handleWebSocket)

	return r
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (r *Router) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"documents":      r.store.Count(),
		"uptime_seconds": int(time.Since(r.startedAt).Seconds()),
	})
}

func (r *Router) handleGetDocument(c *gin.Context) {
	id := c.Param("id")
	meta, err := r.store.ReadOnly(id)
	if err != nil {
		if errors.Is(err, document.ErrUnknownDocument) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"doc_id":     meta.ID,
		"content":    meta.Content,
		"version":    meta.Version,
		"language":   meta.Language,
		"created_at": meta.CreatedAt,
		"updated_at": meta.UpdatedAt,
	})
}

type createDocumentRequest struct {
	Language string `json:"language"`
	Protect  bool   `json:"protect"`
}

// handleCreateDocument creates a fresh empty document. Protect: true mints
// an OTP (secret.go's GenerateOTP) and returns it once in the response body
// — the creator must keep it, since content_update on this document will
// thereafter require presenting it (SPEC_FULL.md §4.4).
func (r *Router) handleCreateDocument(c *gin.Context) {
	var body createDocumentRequest
	// A missing or empty body is fine; language then defaults to "".
	_ = c.ShouldBindJSON(&body)

	id := uuid.NewString()
	r.store.GetOrCreate(id)
	if body.Language != "" {
		if err := r.store.SetLanguage(id, body.Language); err != nil {
			logging.Error("transport: set language on new document %s: %v", id, err)
		}
	}

	resp := gin.H{"doc_id": id}
	if body.Protect {
		otp := GenerateOTP()
		if err := r.store.SetOTP(id, otp); err != nil {
			logging.Error("transport: set otp on new document %s: %v", id, err)
		} else {
			resp["otp"] = otp
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleWebSocket upgrades the connection and runs it to completion,
// defaulting user_id/username from query parameters per spec.md §6. A
// client that supplies its own user_id keeps the same identity across
// reconnects; only its absence falls back to a freshly generated UUID.
func (r *Router) handleWebSocket(c *gin.Context) {
	docID := c.Param("id")
	userID := c.Query("user_id")
	username := c.Query("username")
	otp := c.Query("otp")

	r.store.GetOrCreate(docID)

	if userID == "" {
		userID = uuid.NewString()
	}
	if username == "" {
		username = "Guest-" + uuid.NewString()[:8]
	}

	wc, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logging.Error("transport: websocket upgrade failed: %v", err)
		return
	}

	if err := ServeDocument(c.Request.Context(), r.hub, r.metrics, wc, docID, userID, username, otp); err != nil {
		logging.Debug("transport: connection for document %s ended: %v", docID, err)
	}
}
