package fields

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestNormalizeText(t *testing.T) {
	got, err := Normalize(TypeText, "  I was rear-ended on I-77  ")
	require.NoError(t, err)
	assert.Equal(t, "I was rear-ended on I-77", got)
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"Jane.Doe@Example.COM", "jane.doe@example.com", false},
		{"jane@example.com", "jane@example.com", false},
		{"not-an-email", "", true},
		{"two@@example.com", "", true},
		{"jane@example", "", true},
	}
	for _, tt := range tests {
		got, err := Normalize(TypeEmail, tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidFormat, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"(704) 555-0123", "17045550123", false},
		{"704-555-0123", "17045550123", false},
		{"17045550123", "17045550123", false},
		{"+1 704 555 0123", "17045550123", false},
		{"555-0123", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := Normalize(TypePhone, tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalizeZip(t *testing.T) {
	got, err := Normalize(TypeZip, "28202")
	require.NoError(t, err)
	assert.Equal(t, "28202", got)

	got, err = Normalize(TypeZip, "28202-1234")
	require.NoError(t, err)
	assert.Equal(t, "28202", got)

	_, err = Normalize(TypeZip, "2820")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Normalize(TypeZip, "charlotte")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNormalizeNumber(t *testing.T) {
	got, err := Normalize(TypeNumber, "$12,500.50")
	require.NoError(t, err)
	assert.Equal(t, "12500.5", got)

	got, err = Normalize(TypeNumber, "3")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	_, err = Normalize(TypeNumber, "a few")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2025-03-04", "2025-03-04"},
		{"03/04/2025", "2025-03-04"},
		{"3/4/2025", "2025-03-04"},
		{"March 4, 2025", "2025-03-04"},
		{"Mar 4 2025", "2025-03-04"},
		{"yesterday", "2025-06-14"},
		{"today", "2025-06-15"},
		// Year-less dates anchor to the most recent occurrence.
		{"March 4", "2025-03-04"},
		{"July 4", "2024-07-04"},
	}
	for _, tt := range tests {
		got, err := NormalizeAt(TypeDate, tt.input, refTime)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	_, err := NormalizeAt(TypeDate, "sometime last spring", refTime)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNormalizeBoolean(t *testing.T) {
	for _, yes := range []string{"yes", "Yeah", "y", "true", "Sure"} {
		got, err := Normalize(TypeBoolean, yes)
		require.NoError(t, err)
		assert.Equal(t, "yes", got)
	}
	for _, no := range []string{"no", "Nope", "n", "false"} {
		got, err := Normalize(TypeBoolean, no)
		require.NoError(t, err)
		assert.Equal(t, "no", got)
	}
	_, err := Normalize(TypeBoolean, "maybe")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNormalizeEmpty(t *testing.T) {
	for _, typ := range []Type{TypeText, TypeEmail, TypePhone, TypeZip, TypeNumber, TypeDate, TypeBoolean} {
		_, err := Normalize(typ, "   ")
		assert.ErrorIs(t, err, ErrEmptyValue, string(typ))
	}
}

func TestNormalizeUnknownType(t *testing.T) {
	_, err := Normalize(Type("ssn"), "123")
	assert.ErrorIs(t, err, ErrUnknownType)
}
