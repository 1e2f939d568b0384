package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"guitargpt/internal/chat"
	"guitargpt/internal/models"
	"guitargpt/internal/music"
	"guitargpt/internal/service/gateway"
	"guitargpt/internal/service/history"
	"guitargpt/internal/worker"
)

// randomPhraseLength is how many notes the practice endpoint plays when the
// caller does not ask for a specific message.
const randomPhraseLength = 8

// Credential is the slice of the gateway the HTTP layer reconfigures.
type Credential interface {
	Reconfigure(apiKey string) error
}

// Handler wires HTTP routes to the chat controller and the note player.
type Handler struct {
	store      *history.Service
	gateway    Credential
	controller *chat.Controller
	player     *music.Player
	provider   string
}

// NewHandler constructs a Handler instance.
func NewHandler(store *history.Service, gw Credential, controller *chat.Controller, player *music.Player, provider string) *Handler {
	return &Handler{
		store:      store,
		gateway:    gw,
		controller: controller,
		player:     player,
		provider:   provider,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/profile", h.createProfile)
	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.updateProfile)
	api.PUT("/credential", h.setCredential)
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.DELETE("/sessions/:id", h.deleteSession)
	api.PATCH("/sessions/:id", h.renameSession)
	api.GET("/sessions/:id/messages", h.getSessionMessages)
	api.POST("/chat", h.sendMessage)
	api.POST("/play", h.play)
	api.POST("/play/stop", h.stopPlayback)
	api.GET("/state", h.getState)
	api.DELETE("/history", h.clearHistory)
}

// requireProfile resolves the onboarded profile or fails the request.
func (h *Handler) requireProfile(c *gin.Context) (*models.Profile, bool) {
	profile, err := h.store.GetProfile(c.Request.Context())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not created yet"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return profile, true
}

func sessionIDParam(c *gin.Context) (int64, bool) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return sessionID, true
}

// Onboarding interface
type profileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	APIKey string `json:"api_key"`
}

func (h *Handler) createProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// Both fields are validated before anything is written so a bad key
	// never leaves a half-onboarded profile behind.
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if !gateway.ValidKeyFormat(req.APIKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid api key format"})
		return
	}
	if _, err := h.store.GetProfile(c.Request.Context()); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "profile already exists"})
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.store.CreateProfile(c.Request.Context(), req.Name, req.Avatar)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetCredential(c.Request.Context(), profile.ID, h.provider, req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.gateway.Reconfigure(req.APIKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.controller.BindProfile(profile.ID)
	c.JSON(http.StatusCreated, gin.H{
		"id":         profile.ID,
		"name":       profile.Name,
		"avatar":     profile.Avatar,
		"created_at": profile.CreatedAt,
	})
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, ok := h.requireProfile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *Handler) updateProfile(c *gin.Context) {
	profile, ok := h.requireProfile(c)
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.store.UpdateProfile(c.Request.Context(), profile.ID, req.Name, req.Avatar); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setCredential(c *gin.Context) {
	profile, ok := h.requireProfile(c)
	if !ok {
		return
	}
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !gateway.ValidKeyFormat(req.APIKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid api key format"})
		return
	}
	if err := h.store.SetCredential(c.Request.Context(), profile.ID, h.provider, req.APIKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.gateway.Reconfigure(req.APIKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSessions(c *gin.Context) {
	if _, ok := h.requireProfile(c); !ok {
		return
	}
	sessions, err := h.controller.RefreshSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = make([]models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) createSession(c *gin.Context) {
	if _, ok := h.requireProfile(c); !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	// Body is optional; an absent title falls back to the placeholder.
	_ = c.ShouldBindJSON(&req)
	session, err := h.controller.NewSession(c.Request.Context(), req.Title)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *Handler) deleteSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	if err := h.controller.DeleteSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) renameSession(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.controller.RenameSession(c.Request.Context(), sessionID, req.Title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSessionMessages(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	messages, err := h.controller.SetActiveSession(c.Request.Context(), &sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Chat interface
type chatRequest struct {
	SessionID int64  `json:"session_id"`
	Text      string `json:"text"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	if _, ok := h.requireProfile(c); !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id cannot be negative"})
		return
	}
	result, err := h.controller.SendMessage(c.Request.Context(), req.SessionID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrRunnerBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	// Gateway failures surface as an apology message in the result, never
	// as an HTTP error.
	c.JSON(http.StatusOK, result)
}

// Playback interface
type playRequest struct {
	MessageID int64 `json:"message_id"`
	Count     int   `json:"count"`
}

func (h *Handler) play(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var notes []music.Note
	if req.MessageID > 0 {
		message, err := h.store.GetMessage(c.Request.Context(), req.MessageID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		notes = message.Notes()
		if len(notes) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message has no playable notes"})
			return
		}
	} else {
		count := req.Count
		if count <= 0 {
			count = randomPhraseLength
		}
		notes = music.RandomPhrase(count)
	}

	played := h.player.Play(notes)
	c.JSON(http.StatusOK, gin.H{
		"played":     played,
		"note_count": len(notes),
	})
}

func (h *Handler) stopPlayback(c *gin.Context) {
	h.player.Stop()
	c.Status(http.StatusNoContent)
}

func (h *Handler) getState(c *gin.Context) {
	state := h.controller.State()
	sessions := state.Sessions
	if sessions == nil {
		sessions = make([]models.Session, 0)
	}
	messages := state.Messages
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"active_session_id": state.ActiveSessionID,
		"sessions":          sessions,
		"messages":          messages,
		"is_loading":        state.IsLoading,
	})
}

func (h *Handler) clearHistory(c *gin.Context) {
	if _, ok := h.requireProfile(c); !ok {
		return
	}
	if err := h.controller.ClearHistory(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
