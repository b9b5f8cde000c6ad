// Package session holds per-visitor intake state: detected category, the
// answers gathered so far, the transcript, and the lifecycle stage. Stores
// persist sessions with a fixed TTL set at creation so abandoned chats expire
// on their own.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the session id is unknown or has expired.
var ErrNotFound = errors.New("session: not found")

// Stage is the session lifecycle. Transitions only move forward except for
// reset, which starts a fresh session.
type Stage string

const (
	StageCollecting Stage = "collecting"
	StageComplete   Stage = "complete"
	StageSubmitted  Stage = "submitted"
)

// Role identifies who produced a transcript turn.
type Role string

const (
	RoleVisitor   Role = "visitor"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the full intake state for one visitor conversation.
type Session struct {
	ID          string `json:"id"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`

	// Answers maps field name to the validated, normalized value.
	Answers map[string]string `json:"answers"`

	Stage      Stage  `json:"stage"`
	Transcript []Turn `json:"transcript"`

	// ExtractionMisses counts consecutive turns where the visitor answered
	// the current question but extraction produced nothing for it.
	ExtractionMisses map[string]int `json:"extraction_misses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New creates a collecting session with a fresh id.
func New(ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Answers:   make(map[string]string),
		Stage:     StageCollecting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session's TTL has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Touch bumps UpdatedAt. The expiry window is fixed at creation; activity
// does not extend a session's life.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Append records a transcript turn.
func (s *Session) Append(role Role, text string) {
	s.Transcript = append(s.Transcript, Turn{Role: role, Text: text, At: time.Now().UTC()})
}

// SetAnswer stores a validated value and clears any miss counter for the field.
func (s *Session) SetAnswer(field, value string) {
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	s.Answers[field] = value
	delete(s.ExtractionMisses, field)
}

// RecordMiss increments and returns the consecutive miss count for a field.
func (s *Session) RecordMiss(field string) int {
	if s.ExtractionMisses == nil {
		s.ExtractionMisses = make(map[string]int)
	}
	s.ExtractionMisses[field]++
	return s.ExtractionMisses[field]
}

// Store persists sessions. Implementations must return ErrNotFound for ids
// that were never stored or have expired.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
