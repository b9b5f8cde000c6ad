// Package schema holds the practice-area catalog: per-category required
// fields, question templates, subcategory vocabularies, keyword rules and
// marketplace routing metadata. The catalog is config-as-data, loaded and
// validated once at startup and immutable afterward.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tonyjurso-collab/attorney-directory/internal/fields"
)

const (
	// FallbackCategoryID is the catch-all practice area every catalog must define.
	FallbackCategoryID = "general"

	// FallbackSubcategory is the catch-all refinement within any category.
	FallbackSubcategory = "other"
)

// Source classifies where a field's value originates.
type Source string

const (
	SourceUser   Source = "user"   // asked of the visitor
	SourceServer Source = "server" // populated from request context
	SourceConfig Source = "config" // static per-category configuration
)

// Field declares one required intake field for a category.
type Field struct {
	Name     string      `json:"name"`
	Type     fields.Type `json:"type"`
	Required bool        `json:"required"`
	Source   Source      `json:"source"`
	// AutoPopulated fields are derived from another collected field
	// (city/state from zip) and are never asked directly.
	AutoPopulated bool `json:"auto_populated,omitempty"`
}

// Question is a tagged variant: either a plain template or a map of
// subcategory-keyed variants with a default. In catalog JSON a plain question
// is a string; a contextual one is {"variants": {...}, "default": "..."}.
type Question struct {
	Plain    string
	Variants map[string]string
	Default  string
}

// Resolve returns the question text for the given context key, falling back
// to the declared default variant.
func (q Question) Resolve(contextKey string) (string, bool) {
	if q.Plain != "" {
		return q.Plain, true
	}
	if text, ok := q.Variants[contextKey]; ok && text != "" {
		return text, true
	}
	if q.Default != "" {
		return q.Default, true
	}
	return "", false
}

// UnmarshalJSON accepts both the string and the object form.
func (q *Question) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		q.Plain = plain
		return nil
	}
	var obj struct {
		Variants map[string]string `json:"variants"`
		Default  string            `json:"default"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("schema: question must be a string or variant object: %w", err)
	}
	q.Variants = obj.Variants
	q.Default = obj.Default
	return nil
}

// MarshalJSON emits the same shape UnmarshalJSON accepts.
func (q Question) MarshalJSON() ([]byte, error) {
	if q.Plain != "" {
		return json.Marshal(q.Plain)
	}
	return json.Marshal(struct {
		Variants map[string]string `json:"variants"`
		Default  string            `json:"default"`
	}{q.Variants, q.Default})
}

// KeywordRule maps a keyword set to a target category or subcategory.
// Rule order in the catalog is authoritative: the first rule with any member
// present in the text wins, so specific rules must precede generic ones.
type KeywordRule struct {
	Keywords []string `json:"keywords"`
	Target   string   `json:"target"`
}

// Routing carries the opaque marketplace routing metadata for a category.
type Routing struct {
	CampaignID    string `json:"campaign_id"`
	SupplierID    string `json:"supplier_id"`
	DeliveryEmail string `json:"delivery_email,omitempty"`
}

// Category describes one practice area.
type Category struct {
	ID               string              `json:"id"`
	Label            string              `json:"label"`
	Fields           []Field             `json:"fields"`
	Questions        map[string]Question `json:"questions"`
	Subcategories    []string            `json:"subcategories"`
	SubcategoryRules []KeywordRule       `json:"subcategory_rules"`
	Routing          Routing             `json:"routing"`
}

// Field returns the declared field with the given name.
func (c *Category) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasSubcategory reports whether s belongs to the category's vocabulary.
func (c *Category) HasSubcategory(s string) bool {
	for _, sub := range c.Subcategories {
		if sub == s {
			return true
		}
	}
	return false
}

// catalog is the on-disk shape of the practice-area config.
type catalog struct {
	Categories   []Category    `json:"categories"`
	KeywordRules []KeywordRule `json:"keyword_rules"`
}

// Store is the loaded, validated catalog.
type Store struct {
	categories []Category
	index      map[string]int
	rules      []KeywordRule
}

// Load parses and validates catalog JSON. Malformed catalogs fail fast here
// so per-access code never re-validates.
func Load(data []byte) (*Store, error) {
	var cat catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("schema: failed to parse catalog: %w", err)
	}

	s := &Store{
		categories: cat.Categories,
		index:      make(map[string]int, len(cat.Categories)),
		rules:      cat.KeywordRules,
	}

	for i, c := range s.categories {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("schema: category %d has no id", i)
		}
		if _, dup := s.index[c.ID]; dup {
			return nil, fmt.Errorf("schema: duplicate category id %q", c.ID)
		}
		s.index[c.ID] = i

		if err := validateCategory(&s.categories[i]); err != nil {
			return nil, err
		}
	}

	if _, ok := s.index[FallbackCategoryID]; !ok {
		return nil, fmt.Errorf("schema: catalog must define the %q category", FallbackCategoryID)
	}

	for _, rule := range s.rules {
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("schema: keyword rule for %q has no keywords", rule.Target)
		}
		if _, ok := s.index[rule.Target]; !ok {
			return nil, fmt.Errorf("schema: keyword rule targets unknown category %q", rule.Target)
		}
	}

	return s, nil
}

func validateCategory(c *Category) error {
	validTypes := map[fields.Type]bool{
		fields.TypeText: true, fields.TypeEmail: true, fields.TypePhone: true,
		fields.TypeZip: true, fields.TypeNumber: true, fields.TypeDate: true,
		fields.TypeBoolean: true,
	}

	names := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema: category %q has an unnamed field", c.ID)
		}
		if names[f.Name] {
			return fmt.Errorf("schema: category %q declares field %q twice", c.ID, f.Name)
		}
		names[f.Name] = true
		if !validTypes[f.Type] {
			return fmt.Errorf("schema: category %q field %q has unknown type %q", c.ID, f.Name, f.Type)
		}
		switch f.Source {
		case SourceUser, SourceServer, SourceConfig:
		default:
			return fmt.Errorf("schema: category %q field %q has unknown source %q", c.ID, f.Name, f.Source)
		}
	}

	for name, q := range c.Questions {
		if !names[name] {
			return fmt.Errorf("schema: category %q has a question for undeclared field %q", c.ID, name)
		}
		if q.Plain == "" && q.Default == "" {
			return fmt.Errorf("schema: category %q question for %q has variants but no default", c.ID, name)
		}
		for key := range q.Variants {
			if !c.HasSubcategory(key) {
				return fmt.Errorf("schema: category %q question for %q keys variant on unknown subcategory %q", c.ID, name, key)
			}
		}
	}

	subs := make(map[string]bool, len(c.Subcategories))
	for _, sub := range c.Subcategories {
		subs[sub] = true
	}
	for _, rule := range c.SubcategoryRules {
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("schema: category %q subcategory rule for %q has no keywords", c.ID, rule.Target)
		}
		if !subs[rule.Target] {
			return fmt.Errorf("schema: category %q subcategory rule targets unknown subcategory %q", c.ID, rule.Target)
		}
	}

	return nil
}

// LoadFile loads a catalog from disk.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: failed to read catalog %s: %w", path, err)
	}
	return Load(data)
}

// Category returns the category with the given id.
func (s *Store) Category(id string) (*Category, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.categories[i], true
}

// Fallback returns the catch-all category.
func (s *Store) Fallback() *Category {
	c, _ := s.Category(FallbackCategoryID)
	return c
}

// Categories returns all categories in declared order.
func (s *Store) Categories() []Category {
	return s.categories
}

// CategoryIDs returns all category ids in declared order.
func (s *Store) CategoryIDs() []string {
	ids := make([]string, len(s.categories))
	for i, c := range s.categories {
		ids[i] = c.ID
	}
	return ids
}

// Rules returns the ordered category keyword rules.
func (s *Store) Rules() []KeywordRule {
	return s.rules
}
