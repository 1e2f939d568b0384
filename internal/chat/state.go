package chat

import (
	"time"

	"guitargpt/internal/models"
)

// State is the single in-memory source of truth for the active
// conversation: which session has focus, its ordered messages, and whether
// a send is in flight. Sessions mirrors the persisted list for display.
type State struct {
	ActiveSessionID *int64
	Sessions        []models.Session
	Messages        []models.Message
	IsLoading       bool
}

// Action is the closed vocabulary of legal state mutations.
type Action interface {
	isAction()
}

type SetActiveSession struct{ ID *int64 }

type SetMessages struct{ Messages []models.Message }

type AddMessage struct{ Message models.Message }

// UpdateMessage merges fields into the message with a matching id. It is a
// no-op when the id is absent.
type UpdateMessage struct {
	ID     int64
	Update models.MessageUpdate
	Now    time.Time
}

type DeleteMessage struct{ ID int64 }

type SetLoading struct{ Loading bool }

type SetSessions struct{ Sessions []models.Session }

type AddSession struct{ Session models.Session }

type UpdateSession struct {
	ID     int64
	Update models.SessionUpdate
	Now    time.Time
}

// DeleteSession drops the session from the list and, when it was active,
// clears the focus and its messages.
type DeleteSession struct{ ID int64 }

func (SetActiveSession) isAction() {}
func (SetMessages) isAction()      {}
func (AddMessage) isAction()       {}
func (UpdateMessage) isAction()    {}
func (DeleteMessage) isAction()    {}
func (SetLoading) isAction()       {}
func (SetSessions) isAction()      {}
func (AddSession) isAction()       {}
func (UpdateSession) isAction()    {}
func (DeleteSession) isAction()    {}

// Reduce applies one action to the state and returns the next state. It is
// a pure transformation: inputs are never mutated and no side effects run
// here; callers orchestrate I/O and feed results back as further actions.
func Reduce(state State, action Action) State {
	next := state
	switch a := action.(type) {
	case SetActiveSession:
		next.ActiveSessionID = a.ID

	case SetMessages:
		next.Messages = append([]models.Message(nil), a.Messages...)

	case AddMessage:
		next.Messages = append(append([]models.Message(nil), state.Messages...), a.Message)

	case UpdateMessage:
		msgs := append([]models.Message(nil), state.Messages...)
		for i := range msgs {
			if msgs[i].ID == a.ID {
				a.Update.Apply(&msgs[i], a.Now)
				break
			}
		}
		next.Messages = msgs

	case DeleteMessage:
		msgs := make([]models.Message, 0, len(state.Messages))
		for _, msg := range state.Messages {
			if msg.ID != a.ID {
				msgs = append(msgs, msg)
			}
		}
		next.Messages = msgs

	case SetLoading:
		next.IsLoading = a.Loading

	case SetSessions:
		next.Sessions = append([]models.Session(nil), a.Sessions...)

	case AddSession:
		next.Sessions = append([]models.Session{a.Session}, state.Sessions...)

	case UpdateSession:
		sessions := append([]models.Session(nil), state.Sessions...)
		for i := range sessions {
			if sessions[i].ID == a.ID {
				a.Update.Apply(&sessions[i], a.Now)
				break
			}
		}
		next.Sessions = sessions

	case DeleteSession:
		sessions := make([]models.Session, 0, len(state.Sessions))
		for _, se := range state.Sessions {
			if se.ID != a.ID {
				sessions = append(sessions, se)
			}
		}
		next.Sessions = sessions
		if state.ActiveSessionID != nil && *state.ActiveSessionID == a.ID {
			next.ActiveSessionID = nil
			next.Messages = nil
		}
	}
	return next
}
