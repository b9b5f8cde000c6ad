// Package flow decides what to ask next. Next is a pure function over the
// category schema and the accumulated answers: no I/O, deterministic, safe to
// call repeatedly with the same inputs.
package flow

import (
	"fmt"
	"strings"

	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
)

// Step is the flow controller's decision for one turn.
type Step struct {
	HasNext  bool
	Field    string
	Question string
}

// askable reports whether a field is ever asked of the visitor. Server- and
// config-sourced fields are populated by the caller; auto-populated fields
// derive from another answer.
func askable(f schema.Field) bool {
	return f.Source == schema.SourceUser && !f.AutoPopulated
}

// answered reports whether the accumulated answers already cover the field.
// Missing, empty and whitespace-only values all mean "not yet provided".
func answered(answers map[string]string, name string) bool {
	return strings.TrimSpace(answers[name]) != ""
}

// Next scans the category's required fields in declared order and returns the
// first one still missing, with its resolved question text. Field order in
// the schema is authoritative: two sessions with the same category and the
// same partial answers always see the same question sequence.
func Next(cat *schema.Category, answers map[string]string, subcategory string) Step {
	for _, f := range cat.Fields {
		if !f.Required || !askable(f) {
			continue
		}
		if answered(answers, f.Name) {
			continue
		}
		return Step{
			HasNext:  true,
			Field:    f.Name,
			Question: questionFor(cat, f.Name, subcategory),
		}
	}
	return Step{}
}

// Complete reports whether every required, askable field has an answer. This
// is the only state from which submission may proceed.
func Complete(cat *schema.Category, answers map[string]string) bool {
	return !Next(cat, answers, "").HasNext
}

// MissingFields returns the required, askable fields that still lack answers,
// in declared order.
func MissingFields(cat *schema.Category, answers map[string]string) []schema.Field {
	var missing []schema.Field
	for _, f := range cat.Fields {
		if f.Required && askable(f) && !answered(answers, f.Name) {
			missing = append(missing, f)
		}
	}
	return missing
}

// questionFor resolves the question template for a field: contextual variant
// first, then the declared default, then a generic question when the catalog
// has no template at all.
func questionFor(cat *schema.Category, fieldName, subcategory string) string {
	if q, ok := cat.Questions[fieldName]; ok {
		if text, ok := q.Resolve(subcategory); ok {
			return text
		}
	}
	return fmt.Sprintf("What is your %s?", strings.ReplaceAll(fieldName, "_", " "))
}
