// Package engine orchestrates one conversation turn: classification while the
// category is unknown, extraction on every message, validated merge into the
// session's answers, and the flow controller's next question. External-call
// failures degrade to documented fallbacks; a turn never errors because a
// model did.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonyjurso-collab/attorney-directory/internal/classify"
	"github.com/tonyjurso-collab/attorney-directory/internal/extract"
	"github.com/tonyjurso-collab/attorney-directory/internal/fields"
	"github.com/tonyjurso-collab/attorney-directory/internal/flow"
	"github.com/tonyjurso-collab/attorney-directory/internal/llm"
	"github.com/tonyjurso-collab/attorney-directory/internal/observability/metrics"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// directAskThreshold is the number of consecutive extraction misses on the
// asked field before the next raw reply is accepted through the validator
// directly instead of waiting on the model.
const directAskThreshold = 2

const completionReply = "That's everything I need. A local attorney will review your information and reach out shortly."

// RequestMeta is caller-supplied request metadata used to populate
// server-sourced fields.
type RequestMeta struct {
	ClientIP      string
	UserAgent     string
	ReferringPage string
}

// Debug is per-turn diagnostic detail surfaced to the API's debug_info.
type Debug struct {
	Category             string `json:"category,omitempty"`
	Subcategory          string `json:"subcategory,omitempty"`
	CategoryMethod       string `json:"category_method,omitempty"`
	CategoryConfidence   string `json:"category_confidence,omitempty"`
	ExtractedFields      int    `json:"extracted_fields"`
	DirectAccepted       string `json:"direct_accepted,omitempty"`
	NextField            string `json:"next_field,omitempty"`
	MissingFields        int    `json:"missing_fields"`
}

// TurnResult is the engine's answer to one inbound message.
type TurnResult struct {
	Reply     string
	Complete  bool
	SessionID string
	Debug     Debug
}

// Engine wires the intake components together.
type Engine struct {
	schema    *schema.Store
	store     session.Store
	locker    *session.Locker
	detector  *classify.Detector
	extractor *extract.Extractor
	ttl       time.Duration

	// configValues populate fields with source=config, keyed by field name.
	configValues map[string]string

	logger  *logging.Logger
	metrics *metrics.IntakeMetrics
}

// New creates an engine. configValues supplies config-sourced field values
// such as the consent disclosure text.
func New(s *schema.Store, store session.Store, detector *classify.Detector, extractor *extract.Extractor, ttl time.Duration, configValues map[string]string, logger *logging.Logger, m *metrics.IntakeMetrics) *Engine {
	if s == nil {
		panic("engine: schema store cannot be nil")
	}
	if store == nil {
		panic("engine: session store cannot be nil")
	}
	if detector == nil || extractor == nil {
		panic("engine: detector and extractor cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		schema:       s,
		store:        store,
		locker:       session.NewLocker(),
		detector:     detector,
		extractor:    extractor,
		ttl:          ttl,
		configValues: configValues,
		logger:       logger,
		metrics:      m,
	}
}

// Locker exposes the per-session locker so the submission pipeline can
// serialize against in-flight turns.
func (e *Engine) Locker() *session.Locker {
	return e.locker
}

// Turn processes one inbound message. Concurrent turns for the same session
// id are serialized; different sessions run in parallel.
func (e *Engine) Turn(ctx context.Context, sessionID, message string, meta RequestMeta) (TurnResult, error) {
	start := time.Now()

	sess, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	release := e.locker.Lock(sess.ID)
	defer release()

	// Re-read under the lock; another turn may have advanced the session
	// between load and acquire.
	if current, err := e.store.Get(ctx, sess.ID); err == nil {
		sess = current
	}

	result, err := e.turn(ctx, sess, message, meta)
	if err != nil {
		return TurnResult{}, err
	}

	stage := "collecting"
	if result.Complete {
		stage = "complete"
	}
	e.metrics.ObserveTurn(stage, time.Since(start).Seconds())
	return result, nil
}

func (e *Engine) loadOrCreate(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return session.New(e.ttl), nil
	}
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Unknown or expired ids start over rather than erroring.
			return session.New(e.ttl), nil
		}
		return nil, fmt.Errorf("engine: failed to load session %s: %w", id, err)
	}
	return sess, nil
}

func (e *Engine) turn(ctx context.Context, sess *session.Session, message string, meta RequestMeta) (TurnResult, error) {
	sess.Append(session.RoleVisitor, message)

	var debug Debug

	if sess.Category == "" {
		catResult := e.detector.DetectCategory(ctx, message)
		sess.Category = catResult.Value
		debug.CategoryMethod = string(catResult.Method)
		debug.CategoryConfidence = string(catResult.Confidence)

		subResult := e.detector.DetectSubcategory(ctx, sess.Category, message)
		sess.Subcategory = subResult.Value
	}

	cat, ok := e.schema.Category(sess.Category)
	if !ok {
		// Should be unreachable: the classifier only emits catalog ids.
		e.logger.Error("engine: session references unknown category",
			"session_id", sess.ID, "category", sess.Category)
		cat = e.schema.Fallback()
		sess.Category = cat.ID
		sess.Subcategory = schema.FallbackSubcategory
	}

	e.fillAmbientFields(cat, sess, meta)

	// The field the visitor was just asked for, before this message merges.
	asked := flow.Next(cat, sess.Answers, sess.Subcategory)

	if asked.HasNext && sess.ExtractionMisses[asked.Field] >= directAskThreshold {
		if f, ok := cat.Field(asked.Field); ok {
			if value, err := fields.Normalize(f.Type, message); err == nil {
				sess.SetAnswer(asked.Field, value)
				debug.DirectAccepted = asked.Field
			}
		}
	}

	extracted := e.extractor.Extract(ctx, message, transcriptHistory(sess), e.openFields(cat, sess), asked.Field)
	for name, value := range extracted.Fields {
		if value == nil || *value == "" {
			continue
		}
		sess.SetAnswer(name, *value)
		debug.ExtractedFields++
	}

	if asked.HasNext && debug.DirectAccepted == "" {
		if _, answered := sess.Answers[asked.Field]; !answered {
			sess.RecordMiss(asked.Field)
		}
	}

	if sess.Subcategory == "" && extracted.DetectedSubcategory != "" && cat.HasSubcategory(extracted.DetectedSubcategory) {
		sess.Subcategory = extracted.DetectedSubcategory
	}

	next := flow.Next(cat, sess.Answers, sess.Subcategory)
	var reply string
	if next.HasNext {
		sess.Stage = session.StageCollecting
		reply = next.Question
		debug.NextField = next.Field
	} else if sess.Stage != session.StageSubmitted {
		sess.Stage = session.StageComplete
		reply = completionReply
	} else {
		reply = completionReply
	}

	debug.Category = sess.Category
	debug.Subcategory = sess.Subcategory
	debug.MissingFields = len(flow.MissingFields(cat, sess.Answers))

	sess.Append(session.RoleAssistant, reply)
	sess.Touch()
	if err := e.store.Put(ctx, sess); err != nil {
		return TurnResult{}, fmt.Errorf("engine: failed to persist session %s: %w", sess.ID, err)
	}

	return TurnResult{
		Reply:     reply,
		Complete:  sess.Stage == session.StageComplete || sess.Stage == session.StageSubmitted,
		SessionID: sess.ID,
		Debug:     debug,
	}, nil
}

// Reset discards the session's state. With rotate the caller receives a new
// id; otherwise the id is reused with a fresh session behind it. Either way
// only subsequent turns observe the reset.
func (e *Engine) Reset(ctx context.Context, sessionID string, rotate bool) (string, error) {
	release := e.locker.Lock(sessionID)
	defer release()

	if err := e.store.Delete(ctx, sessionID); err != nil {
		return "", fmt.Errorf("engine: failed to reset session %s: %w", sessionID, err)
	}

	fresh := session.New(e.ttl)
	if !rotate && sessionID != "" {
		fresh.ID = sessionID
	}
	if err := e.store.Put(ctx, fresh); err != nil {
		return "", fmt.Errorf("engine: failed to create session after reset: %w", err)
	}
	return fresh.ID, nil
}

// History returns the session's transcript.
func (e *Engine) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Transcript, nil
}

// Session loads the raw session for submission and inspection endpoints.
func (e *Engine) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.store.Get(ctx, sessionID)
}

// fillAmbientFields populates server- and config-sourced fields that are
// never asked of the visitor.
func (e *Engine) fillAmbientFields(cat *schema.Category, sess *session.Session, meta RequestMeta) {
	for _, f := range cat.Fields {
		if _, ok := sess.Answers[f.Name]; ok {
			continue
		}
		switch f.Source {
		case schema.SourceServer:
			switch f.Name {
			case "client_ip":
				setIfPresent(sess, f.Name, meta.ClientIP)
			case "user_agent":
				setIfPresent(sess, f.Name, meta.UserAgent)
			case "referring_page":
				setIfPresent(sess, f.Name, meta.ReferringPage)
			}
		case schema.SourceConfig:
			setIfPresent(sess, f.Name, e.configValues[f.Name])
		}
	}
}

func setIfPresent(sess *session.Session, field, value string) {
	if value != "" {
		sess.SetAnswer(field, value)
	}
}

// openFields lists the user-sourced fields still unanswered, including
// optional auto-populated ones so enrichment can fill them.
func (e *Engine) openFields(cat *schema.Category, sess *session.Session) []schema.Field {
	var open []schema.Field
	for _, f := range cat.Fields {
		if f.Source != schema.SourceUser {
			continue
		}
		if _, ok := sess.Answers[f.Name]; ok {
			continue
		}
		open = append(open, f)
	}
	return open
}

// transcriptHistory converts the stored transcript into model chat history,
// excluding the visitor message just appended.
func transcriptHistory(sess *session.Session) []llm.ChatMessage {
	if len(sess.Transcript) <= 1 {
		return nil
	}
	prior := sess.Transcript[:len(sess.Transcript)-1]
	history := make([]llm.ChatMessage, 0, len(prior))
	for _, t := range prior {
		role := llm.ChatRoleUser
		if t.Role == session.RoleAssistant {
			role = llm.ChatRoleAssistant
		}
		history = append(history, llm.ChatMessage{Role: role, Content: t.Text})
	}
	return history
}
