// Package fields normalizes and validates raw intake values against their
// declared field types. Invalid values are discarded by callers so the
// conversation re-asks the question instead of storing malformed data.
package fields

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type identifies the format rule applied to a field value.
type Type string

const (
	TypeText    Type = "text"
	TypeEmail   Type = "email"
	TypePhone   Type = "phone"
	TypeZip     Type = "zip"
	TypeNumber  Type = "number"
	TypeDate    Type = "date"
	TypeBoolean Type = "boolean"
)

var (
	// ErrEmptyValue is returned when the raw value is empty or whitespace.
	ErrEmptyValue = errors.New("fields: empty value")

	// ErrInvalidFormat is returned when a value does not match its type's format rule.
	ErrInvalidFormat = errors.New("fields: invalid format")

	// ErrUnknownType is returned for a field type not in the catalog vocabulary.
	ErrUnknownType = errors.New("fields: unknown field type")
)

var (
	emailRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	zipRE   = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
)

// dateLayouts are tried in order when parsing spoken/typed dates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2",
	"Jan 2",
}

// Normalize validates raw against the given type and returns the canonical
// form. Dates are resolved relative to the current time; see NormalizeAt.
func Normalize(t Type, raw string) (string, error) {
	return NormalizeAt(t, raw, time.Now())
}

// NormalizeAt is Normalize with an explicit reference time for relative dates.
func NormalizeAt(t Type, raw string, now time.Time) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrEmptyValue
	}

	switch t {
	case TypeText:
		return value, nil
	case TypeEmail:
		return normalizeEmail(value)
	case TypePhone:
		return normalizePhone(value)
	case TypeZip:
		return normalizeZip(value)
	case TypeNumber:
		return normalizeNumber(value)
	case TypeDate:
		return normalizeDate(value, now)
	case TypeBoolean:
		return normalizeBoolean(value)
	default:
		return "", ErrUnknownType
	}
}

func normalizeEmail(value string) (string, error) {
	value = strings.ToLower(value)
	if !emailRE.MatchString(value) {
		return "", ErrInvalidFormat
	}
	return value, nil
}

// normalizePhone strips non-digits and normalizes 10-digit US numbers to
// 11-digit format.
func normalizePhone(value string) (string, error) {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 10 {
		return "1" + d, nil
	}
	if len(d) == 11 && strings.HasPrefix(d, "1") {
		return d, nil
	}
	return "", ErrInvalidFormat
}

func normalizeZip(value string) (string, error) {
	if !zipRE.MatchString(value) {
		return "", ErrInvalidFormat
	}
	// Drop the +4 extension; downstream systems key on the 5-digit code.
	return value[:5], nil
}

func normalizeNumber(value string) (string, error) {
	cleaned := strings.ReplaceAll(value, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return "", ErrInvalidFormat
	}
	return strconv.FormatFloat(n, 'f', -1, 64), nil
}

func normalizeDate(value string, now time.Time) (string, error) {
	switch strings.ToLower(strings.Trim(value, ".,!?")) {
	case "today":
		return now.Format("2006-01-02"), nil
	case "yesterday":
		return now.AddDate(0, 0, -1).Format("2006-01-02"), nil
	}

	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		// Year-less layouts parse as year 0; anchor them to the current year.
		if parsed.Year() == 0 {
			parsed = parsed.AddDate(now.Year(), 0, 0)
			if parsed.After(now) {
				parsed = parsed.AddDate(-1, 0, 0)
			}
		}
		return parsed.Format("2006-01-02"), nil
	}
	return "", ErrInvalidFormat
}

func normalizeBoolean(value string) (string, error) {
	switch strings.ToLower(strings.Trim(value, ".,!?")) {
	case "yes", "y", "yeah", "yep", "true", "correct", "sure":
		return "yes", nil
	case "no", "n", "nope", "false", "nah":
		return "no", nil
	}
	return "", ErrInvalidFormat
}
