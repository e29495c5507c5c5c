package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/app/orch"
	"github.com/dkeye/VoiceChat/internal/config"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

const sessionRoomKey = "room"

// Voice is the part of the session controller the control API drives.
type Voice interface {
	Start(ctx context.Context, chat domain.ChatName) error
	Stop(ctx context.Context) error
	MuteToggle(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (orch.Status, error)
	RetryOffer(ctx context.Context, id domain.PeerID) error
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, voice Voice, hub *Hub, m *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceChatSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{voice: voice, hub: hub}
	api := r.Group("/api/voice")
	api.POST("/start", h.start)
	api.POST("/stop", h.stop)
	api.POST("/mute", h.mute)
	api.GET("/state", h.state)
	api.GET("/events", hub.serve)
	api.PUT("/peers/:id/muted", h.mutePeer)
	api.POST("/peers/:id/retry", h.retryOffer)

	return r
}

type handlers struct {
	voice Voice
	hub   *Hub
}

type startRequest struct {
	Room string `json:"room"`
}

// start joins the requested room, or the last one this browser used.
func (h *handlers) start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}

	session := sessions.Default(c)
	room := req.Room
	if room == "" {
		room, _ = session.Get(sessionRoomKey).(string)
	}
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room"})
		return
	}

	logger := log.With().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Str("chat", room).Logger()
	if err := h.voice.Start(c.Request.Context(), domain.ChatName(room)); err != nil {
		logger.Warn().Err(err).Msg("start failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	session.Set(sessionRoomKey, room)
	if err := session.Save(); err != nil {
		logger.Error().Err(err).Msg("session save failed")
	}
	logger.Info().Msg("voice chat started")
	c.Status(http.StatusNoContent)
}

func (h *handlers) stop(c *gin.Context) {
	if err := h.voice.Stop(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) mute(c *gin.Context) {
	label, err := h.voice.MuteToggle(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"label": label})
}

func (h *handlers) state(c *gin.Context) {
	st, err := h.voice.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

type mutePeerRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

// mutePeer silences or restores one peer's remote media locally.
func (h *handlers) mutePeer(c *gin.Context) {
	var req mutePeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.hub.MutePeer(domain.PeerID(c.Param("id")), *req.Muted); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) retryOffer(c *gin.Context) {
	id := domain.PeerID(c.Param("id"))
	if err := h.voice.RetryOffer(c.Request.Context(), id); err != nil {
		log.Warn().Str("module", "adapters.http").Str("peer", string(id)).Err(err).Msg("offer retry failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning), errors.Is(err, domain.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrChatNameEmpty), errors.Is(err, domain.ErrChatNameTooLong):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownPeer), errors.Is(err, ErrNotPlaying):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnexpectedDescription), errors.Is(err, domain.ErrPeerClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMediaAccessDenied), errors.Is(err, domain.ErrOfferCreation),
		errors.Is(err, domain.ErrLocalDescriptionApply):
		return http.StatusBadGateway
	case errors.Is(err, orch.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, orch.ErrJoinCanceled), errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
