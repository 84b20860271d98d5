package models

import "time"

// SessionState is one node of the state machine in spec.md §4.6.
type SessionState string

const (
	SessionActive       SessionState = "active"
	SessionWaitingSlots  SessionState = "waiting_slots"
	SessionExecuting     SessionState = "executing"
	SessionCompleted     SessionState = "completed"
	SessionError         SessionState = "error"
	SessionPaused        SessionState = "paused"
	SessionCancelled     SessionState = "cancelled"
	SessionExpired       SessionState = "expired"
)

// sessionTransitions is the adjacency table the state machine is validated
// against. Every "any -> X" rule in spec.md §4.6 is expanded explicitly so
// that an unexpected edge is a compile-time-visible table entry, not a
// scattered set of ad-hoc checks.
var sessionTransitions = map[SessionState]map[SessionState]bool{
	SessionActive: {
		SessionWaitingSlots: true,
		SessionExecuting:    true,
		SessionError:        true,
		SessionCancelled:    true,
		SessionExpired:      true,
	},
	SessionWaitingSlots: {
		SessionActive:    true,
		SessionExecuting: true,
		SessionError:     true,
		SessionCancelled: true,
		SessionExpired:   true,
	},
	SessionExecuting: {
		SessionCompleted: true,
		SessionError:     true,
		SessionCancelled: true,
		SessionExpired:   true,
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// of the session state machine.
func CanTransition(from, to SessionState) bool {
	if from == to {
		return false
	}
	edges, ok := sessionTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Transition moves the session to `to` if the edge is legal per
// CanTransition, or returns an error naming the illegal edge.
func (s *Session) Transition(to SessionState) error {
	if !CanTransition(s.State, to) {
		return &transitionError{From: s.State, To: to}
	}
	s.State = to
	return nil
}

type transitionError struct {
	From SessionState
	To   SessionState
}

func (e *transitionError) Error() string {
	return "illegal session state transition: " + string(e.From) + " -> " + string(e.To)
}

// IsTerminal reports whether a session in this state accepts no further
// transitions other than the ones already encoded (completed/error/paused/
// cancelled/expired are sinks for everything except explicit admin action,
// which this module does not model).
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionError, SessionCancelled, SessionExpired:
		return true
	default:
		return false
	}
}

// Turn records one request/response exchange within a session.
type Turn struct {
	ID               string    `json:"id"`
	UserMessage      string    `json:"user_message"`
	SystemResponse   string    `json:"system_response"`
	DetectedIntent   string    `json:"detected_intent,omitempty"`
	Confidence       float64   `json:"confidence,omitempty"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// SessionContext holds the softer, evolving conversational memory attached
// to a Session: preferences, intent frequency, entity cache and the rolling
// compaction summary.
type SessionContext struct {
	Preferences      map[string]any `json:"preferences,omitempty"`
	IntentFrequency  map[string]int `json:"intent_frequency,omitempty"`
	EntityCache      map[string]any `json:"entity_cache,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	CompressionLevel int            `json:"compression_level"`
	// SlotAttempts counts extraction attempts per "intent:slot" key, so
	// SlotFiller's max_attempts budget survives across turns and process
	// restarts alongside the rest of the session.
	SlotAttempts map[string]int `json:"slot_attempts,omitempty"`
}

// Session is the key-addressed, TTL-bounded unit SessionStore manages.
type Session struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	State         SessionState   `json:"state"`
	History       []Turn         `json:"history,omitempty"`
	CurrentIntent string         `json:"current_intent,omitempty"`
	Slots         map[string]any `json:"slots,omitempty"`
	Context       SessionContext `json:"context"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastActivity  time.Time      `json:"last_activity"`
	TurnCount     int            `json:"turn_count"`
	TTL           time.Duration  `json:"ttl"`
}

// Expired reports whether the session's TTL has elapsed as of `now`.
func (s Session) Expired(now time.Time) bool {
	if s.TTL <= 0 {
		return false
	}
	return now.Sub(s.LastActivity) > s.TTL
}

// Clone returns a deep copy of the session, so that callers holding a
// reference returned by SessionStore.Get cannot mutate shared state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.History != nil {
		clone.History = append([]Turn(nil), s.History...)
	}
	clone.Slots = cloneAnyMap(s.Slots)
	clone.Context = s.Context.clone()
	return &clone
}

func (c SessionContext) clone() SessionContext {
	return SessionContext{
		Preferences:      cloneAnyMap(c.Preferences),
		IntentFrequency:  cloneIntMap(c.IntentFrequency),
		EntityCache:      cloneAnyMap(c.EntityCache),
		Summary:          c.Summary,
		CompressionLevel: c.CompressionLevel,
		SlotAttempts:     cloneIntMap(c.SlotAttempts),
	}
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
