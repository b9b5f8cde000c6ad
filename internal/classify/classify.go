// Package classify detects the visitor's legal category and subcategory using
// a two-stage strategy: a deterministic keyword pass over the catalog's rule
// tables, then a hosted-model classification call when no rule matches. Both
// stages fail soft — callers always receive a usable Result.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tonyjurso-collab/attorney-directory/internal/llm"
	"github.com/tonyjurso-collab/attorney-directory/internal/observability/metrics"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// Confidence is the three-level certainty attached to a detection.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method records which stage produced the result, so callers and tests can
// tell signal from fallback.
type Method string

const (
	MethodRegex    Method = "regex"
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
)

// Result is one category or subcategory detection.
type Result struct {
	Value         string
	Confidence    Confidence
	Method        Method
	DetectionTime time.Duration
}

// Detector runs the two-stage classification.
type Detector struct {
	schema  *schema.Store
	client  llm.Client
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.IntakeMetrics
}

// NewDetector creates a detector. client may be nil, in which case the model
// stage is skipped and unmatched text falls through to the fallback entry.
func NewDetector(s *schema.Store, client llm.Client, timeout time.Duration, logger *logging.Logger, m *metrics.IntakeMetrics) *Detector {
	if s == nil {
		panic("classify: schema store cannot be nil")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{schema: s, client: client, timeout: timeout, logger: logger, metrics: m}
}

const categoryPrompt = `Classify this legal question into exactly ONE category. Respond with JSON only.

Categories:
%s

Question: %s

Respond with: {"category": "<category_id>", "confidence": "<high|medium|low>"}`

const subcategoryPrompt = `Classify this %s question into exactly ONE subcategory. Respond with JSON only.

Subcategories:
%s

Question: %s

Respond with: {"subcategory": "<subcategory>", "confidence": "<high|medium|low>"}`

// DetectCategory resolves text to a category id. It never returns an error:
// empty input, unmatched input with no model, parse failures and model errors
// all coerce to the catch-all category.
func (d *Detector) DetectCategory(ctx context.Context, text string) Result {
	start := time.Now()
	result := d.detectCategory(ctx, text)
	result.DetectionTime = time.Since(start)
	d.metrics.ObserveDetection("category", string(result.Method), string(result.Confidence), result.DetectionTime.Seconds())
	return result
}

func (d *Detector) detectCategory(ctx context.Context, text string) Result {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Result{Value: schema.FallbackCategoryID, Confidence: ConfidenceLow, Method: MethodFallback}
	}

	if target, ok := matchRules(d.schema.Rules(), lowered); ok {
		return Result{Value: target, Confidence: ConfidenceHigh, Method: MethodRegex}
	}

	if d.client == nil {
		return Result{Value: schema.FallbackCategoryID, Confidence: ConfidenceLow, Method: MethodFallback}
	}

	var vocab strings.Builder
	for _, c := range d.schema.Categories() {
		fmt.Fprintf(&vocab, "- %s: %s\n", c.ID, c.Label)
	}

	value, confidence, err := d.completeClassification(ctx,
		fmt.Sprintf(categoryPrompt, vocab.String(), text), "category")
	if err != nil {
		// The model attempt is recorded even though it produced no signal.
		d.logger.Warn("classify: category model call failed", "error", err)
		return Result{Value: schema.FallbackCategoryID, Confidence: ConfidenceLow, Method: MethodAI}
	}
	if _, ok := d.schema.Category(value); !ok {
		return Result{Value: schema.FallbackCategoryID, Confidence: ConfidenceLow, Method: MethodAI}
	}
	return Result{Value: value, Confidence: confidence, Method: MethodAI}
}

// DetectSubcategory resolves text to a subcategory within the given category.
// An unknown category short-circuits to the fallback subcategory without
// running either stage.
func (d *Detector) DetectSubcategory(ctx context.Context, categoryID, text string) Result {
	start := time.Now()
	result := d.detectSubcategory(ctx, categoryID, text)
	result.DetectionTime = time.Since(start)
	d.metrics.ObserveDetection("subcategory", string(result.Method), string(result.Confidence), result.DetectionTime.Seconds())
	return result
}

func (d *Detector) detectSubcategory(ctx context.Context, categoryID, text string) Result {
	cat, ok := d.schema.Category(categoryID)
	if !ok {
		d.logger.Warn("classify: subcategory requested for unknown category", "category", categoryID)
		return Result{Value: schema.FallbackSubcategory, Confidence: ConfidenceLow, Method: MethodFallback}
	}

	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Result{Value: schema.FallbackSubcategory, Confidence: ConfidenceLow, Method: MethodFallback}
	}

	if target, ok := matchRules(cat.SubcategoryRules, lowered); ok {
		return Result{Value: target, Confidence: ConfidenceHigh, Method: MethodRegex}
	}

	if d.client == nil || len(cat.Subcategories) <= 1 {
		return Result{Value: schema.FallbackSubcategory, Confidence: ConfidenceLow, Method: MethodFallback}
	}

	vocab := "- " + strings.Join(cat.Subcategories, "\n- ")
	value, confidence, err := d.completeClassification(ctx,
		fmt.Sprintf(subcategoryPrompt, cat.Label, vocab, text), "subcategory")
	if err != nil {
		d.logger.Warn("classify: subcategory model call failed", "category", categoryID, "error", err)
		return Result{Value: schema.FallbackSubcategory, Confidence: ConfidenceLow, Method: MethodAI}
	}
	if !cat.HasSubcategory(value) {
		return Result{Value: schema.FallbackSubcategory, Confidence: ConfidenceLow, Method: MethodAI}
	}
	return Result{Value: value, Confidence: confidence, Method: MethodAI}
}

// completeClassification runs one model call and parses {<key>, confidence}.
func (d *Detector) completeClassification(ctx context.Context, prompt, key string) (string, Confidence, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.Complete(ctx, llm.Request{
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens: 60,
	})
	if err != nil {
		return "", ConfidenceLow, err
	}

	content := llm.ExtractJSONObject(resp.Text)
	if content == "" {
		return "", ConfidenceLow, fmt.Errorf("classify: no JSON object in model response")
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", ConfidenceLow, fmt.Errorf("classify: failed to parse model response: %w", err)
	}

	var value string
	if raw, ok := parsed[key]; ok {
		_ = json.Unmarshal(raw, &value)
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", ConfidenceLow, fmt.Errorf("classify: model response missing %q", key)
	}

	return value, clampConfidence(parsed["confidence"]), nil
}

// clampConfidence coerces the model's self-reported certainty, which arrives
// as a string or a number depending on provider mood, to the three-level enum.
func clampConfidence(raw json.RawMessage) Confidence {
	if len(raw) == 0 {
		return ConfidenceMedium
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "high":
			return ConfidenceHigh
		case "medium", "moderate":
			return ConfidenceMedium
		case "low":
			return ConfidenceLow
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return confidenceFromScore(f)
		}
		return ConfidenceMedium
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return confidenceFromScore(f)
	}
	return ConfidenceMedium
}

func confidenceFromScore(f float64) Confidence {
	switch {
	case f >= 0.8:
		return ConfidenceHigh
	case f >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// matchRules scans the ordered rule list; the first rule with any keyword
// present in the text wins.
func matchRules(rules []schema.KeywordRule, lowered string) (string, bool) {
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Target, true
			}
		}
	}
	return "", false
}
