package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidTransition is returned for a conversation state change
	// the state machine does not allow
	ErrInvalidTransition = errors.New("invalid conversation state transition")
)

// State is the conversation state of a drafting session. Transitions are
// strictly forward; Error is reachable from any non-terminal state.
type State string

const (
	StateInitiated          State = "initiated"
	StateQuestionsGenerated State = "questions_generated"
	StateQuestionsAsked     State = "questions_asked"
	StateAnswersReceived    State = "answers_received"
	StateGenerating         State = "generating"
	StateCompleted          State = "completed"
	StateError              State = "error"
)

var transitions = map[State][]State{
	StateInitiated:          {StateQuestionsGenerated, StateGenerating, StateError},
	StateQuestionsGenerated: {StateQuestionsAsked, StateError},
	StateQuestionsAsked:     {StateAnswersReceived, StateError},
	StateAnswersReceived:    {StateGenerating, StateQuestionsAsked, StateError},
	StateGenerating:         {StateCompleted, StateError},
	StateCompleted:          {},
	StateError:              {},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state has no outgoing transitions.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Session tracks one drafting conversation for a user.
type Session struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	State       State                  `json:"state"`
	Topic       string                 `json:"topic"`
	RequestType string                 `json:"request_type"`
	Locale      string                 `json:"locale"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ExpiresAt   time.Time              `json:"expires_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// AnswerRounds counts how many times the user has submitted answers.
	AnswerRounds int `json:"answer_rounds"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Transition moves the session to a new state, enforcing the state machine.
func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return ErrInvalidTransition
	}
	s.State = to
	s.UpdatedAt = time.Now()
	return nil
}
