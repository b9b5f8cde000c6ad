// Package marketplace assembles completed intake sessions into lead records
// and submits them to the external lead marketplace. Submission is a single
// POST with no automatic retry; a duplicate lead is judged worse than asking
// the caller to retry explicitly.
package marketplace

import "time"

// Compliance is the caller-supplied consent and tracking payload attached to
// every lead record.
type Compliance struct {
	ConsentText        string            `json:"consent_text"`
	ClientIP           string            `json:"client_ip,omitempty"`
	UserAgent          string            `json:"user_agent,omitempty"`
	ReferringPage      string            `json:"referring_page,omitempty"`
	VerificationTokens map[string]string `json:"verification_tokens,omitempty"`
}

// LeadRecord is the immutable submission payload: the session's answers plus
// routing and compliance metadata. It is created once at submission time and
// never mutated; a resubmission builds a new record.
type LeadRecord struct {
	SessionID   string            `json:"session_id"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory"`
	CampaignID  string            `json:"campaign_id"`
	SupplierID  string            `json:"supplier_id"`
	Answers     map[string]string `json:"answers"`
	Compliance  Compliance        `json:"compliance"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// Submission is the marketplace's acceptance of a lead record.
type Submission struct {
	LeadID      string    `json:"lead_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}
