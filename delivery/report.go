package delivery

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
)

// Outcome is the terminal state of a single channel delivery attempt.
type Outcome string

const (
	// OutcomeSent means the transport accepted the message.
	OutcomeSent Outcome = "sent"
	// OutcomeFailed means delivery failed transiently and the retry budget
	// ran out, or a circuit breaker refused the attempt.
	OutcomeFailed Outcome = "failed"
	// OutcomePermanentlyFailed means the transport reported a failure that
	// retrying cannot fix.
	OutcomePermanentlyFailed Outcome = "permanently_failed"
	// OutcomePending means the recipient resolved to no channels; nothing
	// was sent but the recipient was considered.
	OutcomePending Outcome = "pending"
	// OutcomeSkippedEventEnded means a reminder fired after its event was
	// cancelled or ended, and delivery was deliberately skipped.
	OutcomeSkippedEventEnded Outcome = "skipped_event_ended"
)

// Attempt is the persisted record of delivering one message to one channel
// (or of deciding not to: pending and skipped attempts carry no channel).
type Attempt struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	SubscriptionID uuid.UUID // uuid.Nil for organizer confirmations
	ChannelID      *uuid.UUID
	ChannelKind    event.ChannelKind
	MessageKind    string
	Outcome        Outcome
	Tries          int // transport calls consumed, 0 for pending/skipped
	Error          string
	Duration       time.Duration
	CreatedAt      time.Time
}

// Report aggregates one fan-out invocation. It preserves the full multiset
// of attempt outcomes plus the resolution gaps encountered on the way.
type Report struct {
	mu sync.Mutex

	EventID     uuid.UUID
	MessageKind string
	StartedAt   time.Time
	Duration    time.Duration
	Attempts    []Attempt
	Gaps        []Gap
}

func newReport(eventID uuid.UUID, messageKind string) *Report {
	return &Report{
		EventID:     eventID,
		MessageKind: messageKind,
		StartedAt:   time.Now(),
	}
}

func (r *Report) add(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attempts = append(r.Attempts, a)
}

func (r *Report) addGaps(gaps []Gap) {
	if len(gaps) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Gaps = append(r.Gaps, gaps...)
}

// Counts returns the number of attempts per outcome.
func (r *Report) Counts() map[Outcome]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Outcome]int, 5)
	for _, a := range r.Attempts {
		counts[a.Outcome]++
	}
	return counts
}

// Sent returns the number of attempts that reached a transport successfully.
func (r *Report) Sent() int { return r.Counts()[OutcomeSent] }

// Failed returns the number of failed attempts, transient and permanent.
func (r *Report) Failed() int {
	c := r.Counts()
	return c[OutcomeFailed] + c[OutcomePermanentlyFailed]
}

// Total returns the total number of recorded attempts.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Attempts)
}

// Summary is a read-model aggregation of stored attempts for one event,
// served by the delivery report endpoint.
type Summary struct {
	EventID       uuid.UUID       `json:"event_id"`
	Total         int             `json:"total"`
	Counts        map[Outcome]int `json:"counts"`
	ByMessageKind map[string]int  `json:"by_message_kind"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}

// Summarize folds stored attempts into a Summary.
func Summarize(eventID uuid.UUID, attempts []Attempt) Summary {
	s := Summary{
		EventID:       eventID,
		Total:         len(attempts),
		Counts:        make(map[Outcome]int, 5),
		ByMessageKind: make(map[string]int),
	}
	for _, a := range attempts {
		s.Counts[a.Outcome]++
		s.ByMessageKind[a.MessageKind]++
		if s.LastAttemptAt == nil || a.CreatedAt.After(*s.LastAttemptAt) {
			at := a.CreatedAt
			s.LastAttemptAt = &at
		}
	}
	return s
}
