package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"paygate/cardauth/pkg/flow"
	"paygate/cardauth/pkg/nuvei/response"
)

type EventType string

const (
	EventLoading   EventType = "loading"
	EventSuccess   EventType = "success"
	EventVerify    EventType = "verify"
	EventChallenge EventType = "challenge"
	EventError     EventType = "error"
)

// Event is one callback invocation recorded for later retrieval by the
// embedding client.
type Event struct {
	Type          EventType        `json:"type"`
	At            time.Time        `json:"at"`
	IsLoading     bool             `json:"is_loading,omitempty"`
	Accepted      bool             `json:"accepted,omitempty"`
	Message       string           `json:"message,omitempty"`
	ChallengeHtml string           `json:"challenge_html,omitempty"`
	Verify        *response.Verify `json:"verify,omitempty"`
	Error         *flow.ErrorModel `json:"error,omitempty"`
}

// Submission pairs one flow service instance with the events its
// callbacks produced. Events may be appended from the poller goroutine
// while a handler reads them.
type Submission struct {
	Id        string
	CreatedAt time.Time

	service flow.Service

	mu     sync.Mutex
	events []Event
}

func (s *Submission) Service() flow.Service {
	return s.service
}

// Attach wires the flow service once the callbacks have been handed to
// its constructor.
func (s *Submission) Attach(service flow.Service) {
	s.service = service
}

func (s *Submission) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Submission) record(e Event) {
	e.At = time.Now().UTC()
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Callbacks returns the capability set wired into the flow service;
// every callback is recorded as an event.
func (s *Submission) Callbacks() flow.Callbacks {
	return flow.CallbackFuncs{
		Loading: func(isLoading bool) {
			s.record(Event{Type: EventLoading, IsLoading: isLoading})
		},
		Success: func(accepted bool, message string) {
			s.record(Event{Type: EventSuccess, Accepted: accepted, Message: message})
		},
		Verify: func(resp *response.Verify) {
			s.record(Event{Type: EventVerify, Verify: resp})
		},
		Challenge: func(challengeHtml string) {
			s.record(Event{Type: EventChallenge, ChallengeHtml: challengeHtml})
		},
		Error: func(err flow.ErrorModel) {
			s.record(Event{Type: EventError, Error: &err})
		},
	}
}

// Store holds live submissions keyed by id.
type Store struct {
	mu          sync.RWMutex
	submissions map[string]*Submission
}

func NewStore() *Store {
	return &Store{
		submissions: make(map[string]*Submission),
	}
}

// NewSubmission registers an empty submission; the caller attaches the
// flow service after wiring the callbacks.
func (s *Store) NewSubmission() *Submission {
	sub := &Submission{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.submissions[sub.Id] = sub
	s.mu.Unlock()
	return sub
}

func (s *Store) Get(id string) (*Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	return sub, ok
}
