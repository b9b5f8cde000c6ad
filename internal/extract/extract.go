// Package extract harvests intake fields from free text with a single
// hosted-model call per turn. The contract with the model is conservative:
// null over guess. Model output is never trusted — every value passes the
// field validator before it is accepted.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tonyjurso-collab/attorney-directory/internal/fields"
	"github.com/tonyjurso-collab/attorney-directory/internal/llm"
	"github.com/tonyjurso-collab/attorney-directory/internal/location"
	"github.com/tonyjurso-collab/attorney-directory/internal/observability/metrics"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// historyWindow caps how many prior turns are replayed into the prompt.
const historyWindow = 12

// Result is one extraction pass. Every requested field has a key; a nil
// value means "not stated in the text", which callers must distinguish from
// "extraction not attempted".
type Result struct {
	Fields              map[string]*string
	DetectedCategory    string
	DetectedSubcategory string
	Confidence          float64
	IsLegalQuestion     bool
}

// Extractor runs model-backed field extraction with validation and location
// enrichment.
type Extractor struct {
	schema   *schema.Store
	client   llm.Client
	location *location.Client
	timeout  time.Duration
	logger   *logging.Logger
	metrics  *metrics.IntakeMetrics
}

// NewExtractor creates an extractor. location may be nil to disable
// enrichment.
func NewExtractor(s *schema.Store, client llm.Client, loc *location.Client, timeout time.Duration, logger *logging.Logger, m *metrics.IntakeMetrics) *Extractor {
	if s == nil {
		panic("extract: schema store cannot be nil")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{schema: s, client: client, location: loc, timeout: timeout, logger: logger, metrics: m}
}

const extractSystem = `You extract structured intake fields from a consumer's message about a legal problem.
Rules:
- Only extract facts the text actually states. If a field is not mentioned, use null.
- Never guess, infer, or fabricate values.
- Respond with a single JSON object and nothing else.`

// wireResult is the defensive shape we accept from the model.
type wireResult struct {
	Fields          map[string]json.RawMessage `json:"fields"`
	Category        string                     `json:"category"`
	Subcategory     string                     `json:"subcategory"`
	Confidence      float64                    `json:"confidence"`
	IsLegalQuestion bool                       `json:"is_legal_question"`
}

// Extract asks the model for as many of the requested fields as the message
// (plus history) supports. It fails soft: any model or parse failure yields
// an all-null result with confidence 0, never an error.
func (e *Extractor) Extract(ctx context.Context, message string, history []llm.ChatMessage, requested []schema.Field, currentFieldHint string) Result {
	result := Result{Fields: make(map[string]*string, len(requested))}
	for _, f := range requested {
		result.Fields[f.Name] = nil
	}

	if e.client == nil || len(requested) == 0 {
		return result
	}

	prompt := e.buildPrompt(message, history, requested, currentFieldHint)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Complete(ctx, llm.Request{
		System:    []string{extractSystem},
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens: 512,
	})
	if err != nil {
		e.logger.Warn("extract: model call failed", "error", err)
		return result
	}

	content := llm.ExtractJSONObject(resp.Text)
	if content == "" {
		e.logger.Warn("extract: no JSON object in model response")
		return result
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		e.logger.Warn("extract: failed to parse model response", "error", err)
		return result
	}

	for _, f := range requested {
		raw, ok := wire.Fields[f.Name]
		if !ok {
			e.metrics.ObserveExtraction("null")
			continue
		}
		value, ok := coerceString(raw)
		if !ok || strings.TrimSpace(value) == "" {
			e.metrics.ObserveExtraction("null")
			continue
		}
		normalized, err := fields.Normalize(f.Type, value)
		if err != nil {
			e.logger.Debug("extract: discarding invalid value",
				"field", f.Name, "type", string(f.Type), "error", err)
			e.metrics.ObserveExtraction("invalid")
			continue
		}
		result.Fields[f.Name] = &normalized
		e.metrics.ObserveExtraction("filled")
	}

	result.DetectedCategory = normalizeDetected(wire.Category)
	result.DetectedSubcategory = normalizeDetected(wire.Subcategory)
	result.Confidence = clamp01(wire.Confidence)
	result.IsLegalQuestion = wire.IsLegalQuestion

	e.enrichLocation(ctx, requested, result.Fields)

	return result
}

func (e *Extractor) buildPrompt(message string, history []llm.ChatMessage, requested []schema.Field, currentFieldHint string) string {
	var b strings.Builder

	b.WriteString("Known legal categories: ")
	b.WriteString(strings.Join(e.schema.CategoryIDs(), ", "))
	b.WriteString("\n\nFields to extract (use exactly these keys):\n")
	for _, f := range requested {
		fmt.Fprintf(&b, "- %s (%s)\n", f.Name, f.Type)
	}
	if currentFieldHint != "" {
		fmt.Fprintf(&b, "\nThe visitor was just asked for: %s\n", currentFieldHint)
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		start := 0
		if len(history) > historyWindow {
			start = len(history) - historyWindow
		}
		for _, msg := range history[start:] {
			if msg.Role == llm.ChatRoleSystem {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	fmt.Fprintf(&b, "\nLatest message: %s\n", message)
	b.WriteString(`
Respond with:
{"fields": {"<key>": "<value or null>"}, "category": "<category or null>", "subcategory": "<subcategory or null>", "confidence": <0.0-1.0>, "is_legal_question": <true|false>}`)

	return b.String()
}

// enrichLocation fills city/state from an extracted zip when the model didn't.
// Lookup failure is swallowed; city/state stay optional downstream.
func (e *Extractor) enrichLocation(ctx context.Context, requested []schema.Field, values map[string]*string) {
	if e.location == nil {
		return
	}

	var zip string
	wantCity, wantState := false, false
	for _, f := range requested {
		switch {
		case f.Type == fields.TypeZip:
			if v := values[f.Name]; v != nil {
				zip = *v
			}
		case f.Name == "city":
			wantCity = values[f.Name] == nil
		case f.Name == "state":
			wantState = values[f.Name] == nil
		}
	}
	if zip == "" || (!wantCity && !wantState) {
		return
	}

	place, err := e.location.Lookup(ctx, zip)
	if err != nil {
		if !errors.Is(err, location.ErrNotFound) {
			e.logger.Warn("extract: location enrichment failed", "zip", zip, "error", err)
		}
		return
	}
	if wantCity && place.City != "" {
		city := place.City
		values["city"] = &city
	}
	if wantState && place.State != "" {
		state := place.State
		values["state"] = &state
	}
}

// coerceString accepts the string, number and boolean encodings models
// actually produce for field values.
func coerceString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "yes", true
		}
		return "no", true
	}
	return "", false
}

func normalizeDetected(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "null" || v == "none" {
		return ""
	}
	return v
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
