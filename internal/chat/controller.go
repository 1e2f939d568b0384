package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"guitargpt/internal/models"
	"guitargpt/internal/music"
	"guitargpt/internal/service/history"
	"guitargpt/internal/worker"
)

// apologyText is appended as a regular assistant message when a send fails
// after the user's message was persisted.
const apologyText = "Sorry, I encountered an error. Please try again."

// titleGenerationThreshold is the message count at which a session earns a
// generated title, once.
const titleGenerationThreshold = 5

// Gateway is the slice of the AI gateway the controller needs.
type Gateway interface {
	Chat(ctx context.Context, history []models.Message) ([]models.Segment, error)
	GenerateTitle(ctx context.Context, history []models.Message) (string, error)
}

// NotePlayer starts playback of a note sequence, reporting acceptance.
type NotePlayer interface {
	Play(notes []music.Note) bool
}

// SendResult describes everything a completed send produced.
type SendResult struct {
	Session          *models.Session `json:"session"`
	UserMessage      *models.Message `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message"`
	Played           bool            `json:"played"`
}

// Controller owns the conversation state machine. Every mutation flows
// through Reduce; the controller orchestrates persistence, the gateway and
// playback around it. Sends that target the same session are serialized in
// submission order by the runner.
type Controller struct {
	store   *history.Service
	gateway Gateway
	player  NotePlayer
	cache   *Cache
	runner  *worker.Runner
	log     *zap.Logger

	mu        sync.RWMutex
	profileID int64
	state     State
}

func NewController(store *history.Service, gateway Gateway, player NotePlayer, cache *Cache, runner *worker.Runner, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:   store,
		gateway: gateway,
		player:  player,
		cache:   cache,
		runner:  runner,
		log:     log,
	}
}

// BindProfile attaches the controller to the onboarded profile.
func (c *Controller) BindProfile(profileID int64) {
	c.mu.Lock()
	c.profileID = profileID
	c.mu.Unlock()
}

func (c *Controller) boundProfile() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.profileID <= 0 {
		return 0, errors.New("no profile bound")
	}
	return c.profileID, nil
}

// State returns a snapshot of the current conversation state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) dispatch(action Action) {
	c.mu.Lock()
	c.state = Reduce(c.state, action)
	c.mu.Unlock()
}

// dispatchForSession applies message-level actions only while the session
// still has focus. Late results from a background send must not leak into
// whatever session the user switched to.
func (c *Controller) dispatchForSession(sessionID int64, action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.ActiveSessionID == nil || *c.state.ActiveSessionID != sessionID {
		return
	}
	c.state = Reduce(c.state, action)
}

// RefreshSessions reloads the session list from the store.
func (c *Controller) RefreshSessions(ctx context.Context) ([]models.Session, error) {
	profileID, err := c.boundProfile()
	if err != nil {
		return nil, err
	}
	sessions, err := c.store.ListSessions(ctx, profileID)
	if err != nil {
		return nil, err
	}
	c.dispatch(SetSessions{Sessions: sessions})
	return sessions, nil
}

// SetActiveSession switches focus. A nil id clears the focus; otherwise the
// session's messages are loaded from cache or store.
func (c *Controller) SetActiveSession(ctx context.Context, sessionID *int64) ([]models.Message, error) {
	if sessionID == nil {
		c.dispatch(SetActiveSession{ID: nil})
		c.dispatch(SetMessages{Messages: nil})
		return nil, nil
	}
	if _, err := c.store.GetSession(ctx, *sessionID); err != nil {
		return nil, err
	}
	messages, ok := c.cache.LoadMessages(ctx, *sessionID)
	if !ok {
		var err error
		messages, err = c.store.ListMessages(ctx, *sessionID)
		if err != nil {
			return nil, err
		}
		c.cache.StoreMessages(ctx, *sessionID, messages)
	}
	id := *sessionID
	c.dispatch(SetActiveSession{ID: &id})
	c.dispatch(SetMessages{Messages: messages})
	return messages, nil
}

// NewSession creates a session and makes it active.
func (c *Controller) NewSession(ctx context.Context, title string) (*models.Session, error) {
	profileID, err := c.boundProfile()
	if err != nil {
		return nil, err
	}
	session, err := c.store.CreateSession(ctx, profileID, title)
	if err != nil {
		return nil, err
	}
	c.dispatch(AddSession{Session: *session})
	id := session.ID
	c.dispatch(SetActiveSession{ID: &id})
	c.dispatch(SetMessages{Messages: nil})
	return session, nil
}

// DeleteSession removes the session and its messages everywhere.
func (c *Controller) DeleteSession(ctx context.Context, sessionID int64) error {
	if err := c.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	c.runner.Cancel(sessionID)
	c.cache.Invalidate(ctx, sessionID)
	c.dispatch(DeleteSession{ID: sessionID})
	return nil
}

// RenameSession sets a user-chosen title. The in-memory mirror is only
// touched when the store actually changed, so a same-title rename stays
// invisible everywhere.
func (c *Controller) RenameSession(ctx context.Context, sessionID int64, title string) error {
	changed, err := c.store.RenameSession(ctx, sessionID, title)
	if err != nil {
		return err
	}
	if changed {
		t := strings.TrimSpace(title)
		c.dispatch(UpdateSession{ID: sessionID, Update: models.SessionUpdate{Title: &t}, Now: time.Now().UTC()})
	}
	return nil
}

// ClearHistory wipes every session and message for the bound profile.
func (c *Controller) ClearHistory(ctx context.Context) error {
	profileID, err := c.boundProfile()
	if err != nil {
		return err
	}
	snapshot := c.State()
	if err := c.store.ClearHistory(ctx, profileID); err != nil {
		return err
	}
	for _, se := range snapshot.Sessions {
		c.runner.Cancel(se.ID)
		c.cache.Invalidate(ctx, se.ID)
	}
	c.dispatch(SetSessions{Sessions: nil})
	c.dispatch(SetActiveSession{ID: nil})
	c.dispatch(SetMessages{Messages: nil})
	return nil
}

type sendOutcome struct {
	result *SendResult
	err    error
}

// SendMessage runs the full send protocol for one user message. Sends to
// the same session execute one at a time in submission order; sends to
// different sessions may overlap. A zero sessionID targets the active
// session, creating one when none has focus.
func (c *Controller) SendMessage(ctx context.Context, sessionID int64, text string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("message text cannot be empty")
	}

	session, err := c.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	done := make(chan sendOutcome, 1)
	// The job outlives a caller that gives up waiting; late gateway
	// responses still land in the originating session.
	jobCtx := context.WithoutCancel(ctx)
	err = c.runner.Submit(session.ID, func() {
		result, err := c.performSend(jobCtx, session.ID, text)
		done <- sendOutcome{result: result, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) resolveSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	if sessionID > 0 {
		session, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if active := c.State().ActiveSessionID; active == nil || *active != sessionID {
			if _, err := c.SetActiveSession(ctx, &sessionID); err != nil {
				return nil, err
			}
		}
		return session, nil
	}
	if active := c.State().ActiveSessionID; active != nil {
		return c.store.GetSession(ctx, *active)
	}
	return c.NewSession(ctx, "")
}

// performSend is the send protocol body. By the time it runs the user
// message may race with session deletion; store errors abort the send.
func (c *Controller) performSend(ctx context.Context, sessionID int64, text string) (result *SendResult, err error) {
	userMsg, err := c.store.AddMessage(ctx, models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Text:      text,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	c.dispatchForSession(sessionID, AddMessage{Message: *userMsg})

	if err := c.store.TouchSession(ctx, sessionID, text); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	c.dispatchForSession(sessionID, UpdateSession{
		ID:     sessionID,
		Update: models.SessionUpdate{LastMessage: &text},
		Now:    time.Now().UTC(),
	})

	// Snapshot the prompt context before the placeholder exists so the
	// model never sees its own empty reply.
	promptHistory, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	placeholder, err := c.store.AddMessage(ctx, models.Message{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Segments:  []models.Segment{},
		IsLoading: true,
	})
	if err != nil {
		return nil, fmt.Errorf("persist placeholder: %w", err)
	}
	c.dispatchForSession(sessionID, AddMessage{Message: *placeholder})

	c.dispatch(SetLoading{Loading: true})
	defer c.dispatch(SetLoading{Loading: false})
	defer c.cache.Invalidate(ctx, sessionID)

	segments, gatewayErr := c.gateway.Chat(ctx, promptHistory)
	if gatewayErr != nil {
		c.log.Warn("send failed", zap.Int64("session_id", sessionID), zap.Error(gatewayErr))
		return c.recoverFailedSend(ctx, sessionID, userMsg, placeholder.ID)
	}

	loading := false
	update := models.MessageUpdate{Segments: &segments, IsLoading: &loading}
	if err := c.store.UpdateMessage(ctx, placeholder.ID, update); err != nil {
		return nil, fmt.Errorf("finalize assistant message: %w", err)
	}
	now := time.Now().UTC()
	c.dispatchForSession(sessionID, UpdateMessage{ID: placeholder.ID, Update: update, Now: now})

	assistant := *placeholder
	update.Apply(&assistant, now)

	played := false
	if notes := assistant.Notes(); len(notes) > 0 && c.player != nil {
		played = c.player.Play(notes)
	}

	go c.maybeGenerateTitle(context.WithoutCancel(ctx), sessionID)

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	return &SendResult{
		Session:          session,
		UserMessage:      userMsg,
		AssistantMessage: &assistant,
		Played:           played,
	}, nil
}

// recoverFailedSend removes the placeholder and appends the apology as a
// regular assistant message, leaving the user's message in place.
func (c *Controller) recoverFailedSend(ctx context.Context, sessionID int64, userMsg *models.Message, placeholderID int64) (*SendResult, error) {
	if err := c.store.DeleteMessage(ctx, placeholderID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.log.Error("remove placeholder", zap.Int64("message_id", placeholderID), zap.Error(err))
	}
	c.dispatchForSession(sessionID, DeleteMessage{ID: placeholderID})

	apology, err := c.store.AddMessage(ctx, models.Message{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Segments:  []models.Segment{models.TextSegment(apologyText)},
	})
	if err != nil {
		return nil, fmt.Errorf("persist apology: %w", err)
	}
	c.dispatchForSession(sessionID, AddMessage{Message: *apology})

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	return &SendResult{
		Session:          session,
		UserMessage:      userMsg,
		AssistantMessage: apology,
	}, nil
}

// maybeGenerateTitle asks for a generated title once the conversation is
// substantial enough. Failures are logged and swallowed; the session keeps
// its current title and stays eligible for a later attempt.
func (c *Controller) maybeGenerateTitle(ctx context.Context, sessionID int64) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("title check", zap.Int64("session_id", sessionID), zap.Error(err))
		}
		return
	}
	if session.HasGeneratedTitle {
		return
	}
	messages, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		c.log.Warn("title history", zap.Int64("session_id", sessionID), zap.Error(err))
		return
	}
	if len(messages) < titleGenerationThreshold {
		return
	}
	title, err := c.gateway.GenerateTitle(ctx, messages)
	if err != nil {
		c.log.Warn("title generation failed", zap.Int64("session_id", sessionID), zap.Error(err))
		return
	}
	if err := c.store.MarkTitleGenerated(ctx, sessionID, title); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("store generated title", zap.Int64("session_id", sessionID), zap.Error(err))
		}
		return
	}
	generated := true
	c.dispatch(UpdateSession{
		ID:     sessionID,
		Update: models.SessionUpdate{Title: &title, HasGeneratedTitle: &generated},
		Now:    time.Now().UTC(),
	})
}
