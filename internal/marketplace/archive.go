package marketplace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Archive is the insert-only Postgres record of submitted leads. It exists
// for bookkeeping and offline reconciliation; the marketplace response is
// still the source of truth for delivery.
type Archive struct {
	db *sql.DB
}

// NewArchive creates an archive over an open database handle.
func NewArchive(db *sql.DB) *Archive {
	if db == nil {
		panic("marketplace: db handle cannot be nil")
	}
	return &Archive{db: db}
}

// Record inserts one accepted lead. Answers are stored as a JSON document so
// the schema survives catalog changes.
func (a *Archive) Record(ctx context.Context, leadID string, record LeadRecord) error {
	answers, err := json.Marshal(record.Answers)
	if err != nil {
		return fmt.Errorf("marketplace: failed to encode answers: %w", err)
	}

	const query = `
		INSERT INTO lead_archive (lead_id, session_id, category, subcategory, campaign_id, supplier_id, answers, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := a.db.ExecContext(ctx, query,
		leadID,
		record.SessionID,
		record.Category,
		record.Subcategory,
		record.CampaignID,
		record.SupplierID,
		answers,
		record.SubmittedAt,
	); err != nil {
		return fmt.Errorf("marketplace: archive insert failed: %w", err)
	}
	return nil
}
