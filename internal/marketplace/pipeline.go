package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tonyjurso-collab/attorney-directory/internal/flow"
	"github.com/tonyjurso-collab/attorney-directory/internal/notify"
	"github.com/tonyjurso-collab/attorney-directory/internal/observability/metrics"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// ErrUnknownCategory means the session references a category the catalog no
// longer declares.
var ErrUnknownCategory = errors.New("marketplace: unknown category")

// Submitter posts lead records. Satisfied by *Client.
type Submitter interface {
	Submit(ctx context.Context, record LeadRecord) (string, error)
}

// Pipeline turns a complete session into a submitted lead. Archive and email
// are best-effort side channels; only the marketplace call decides success.
type Pipeline struct {
	schema  *schema.Store
	store   session.Store
	locker  *session.Locker
	client  Submitter
	archive *Archive
	emails  notify.EmailSender
	logger  *logging.Logger
	metrics *metrics.IntakeMetrics
}

// NewPipeline creates a pipeline. locker should be the same Locker the engine
// serializes turns with so a submission and a turn never race on one session;
// nil creates a standalone one. archive and emails may be nil to disable
// those side channels.
func NewPipeline(s *schema.Store, store session.Store, locker *session.Locker, client Submitter, archive *Archive, emails notify.EmailSender, logger *logging.Logger, m *metrics.IntakeMetrics) *Pipeline {
	if s == nil {
		panic("marketplace: schema store cannot be nil")
	}
	if store == nil {
		panic("marketplace: session store cannot be nil")
	}
	if client == nil {
		panic("marketplace: submitter cannot be nil")
	}
	if locker == nil {
		locker = session.NewLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{schema: s, store: store, locker: locker, client: client, archive: archive, emails: emails, logger: logger, metrics: m}
}

// Submit assembles and posts the lead record for a complete session. The
// session transitions to submitted only on marketplace acceptance. Calling
// again on a submitted session is rejected, never silently re-sent.
func (p *Pipeline) Submit(ctx context.Context, sessionID string, compliance Compliance) (Submission, error) {
	// Hold the session lock across load, post, and stage transition so two
	// concurrent submissions cannot both observe stage=complete and deliver
	// the lead twice.
	release := p.locker.Lock(sessionID)
	defer release()

	sess, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return Submission{}, fmt.Errorf("marketplace: failed to load session %s: %w", sessionID, err)
	}

	switch sess.Stage {
	case session.StageSubmitted:
		p.metrics.ObserveSubmission("duplicate")
		return Submission{}, ErrAlreadySubmitted
	case session.StageComplete:
	default:
		p.metrics.ObserveSubmission("incomplete")
		return Submission{}, ErrNotComplete
	}

	cat, ok := p.schema.Category(sess.Category)
	if !ok {
		return Submission{}, fmt.Errorf("%w: %s", ErrUnknownCategory, sess.Category)
	}
	if !flow.Complete(cat, sess.Answers) {
		// Stage said complete but the answers disagree; trust the answers.
		p.metrics.ObserveSubmission("incomplete")
		return Submission{}, ErrNotComplete
	}

	record := p.buildRecord(cat, sess, compliance)

	leadID, err := p.client.Submit(ctx, record)
	if err != nil {
		var submitErr *SubmitError
		if errors.As(err, &submitErr) {
			p.metrics.ObserveSubmission(submitErr.Code)
		} else {
			p.metrics.ObserveSubmission("error")
		}
		return Submission{}, err
	}

	sess.Stage = session.StageSubmitted
	sess.UpdatedAt = time.Now().UTC()
	if err := p.store.Put(ctx, sess); err != nil {
		// The lead was delivered; losing the stage transition risks a
		// duplicate on retry, so make it loud.
		p.logger.Error("marketplace: lead accepted but session update failed",
			"session_id", sess.ID, "lead_id", leadID, "error", err)
	}

	p.metrics.ObserveSubmission("accepted")
	p.sideChannels(ctx, leadID, record, cat)

	return Submission{LeadID: leadID, SubmittedAt: record.SubmittedAt}, nil
}

// buildRecord snapshots the session into an immutable lead record, filling
// compliance gaps from server-collected answers.
func (p *Pipeline) buildRecord(cat *schema.Category, sess *session.Session, compliance Compliance) LeadRecord {
	answers := make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = v
	}

	if compliance.ConsentText == "" {
		compliance.ConsentText = answers["tcpa_consent_text"]
	}
	if compliance.ClientIP == "" {
		compliance.ClientIP = answers["client_ip"]
	}
	if compliance.UserAgent == "" {
		compliance.UserAgent = answers["user_agent"]
	}
	if compliance.ReferringPage == "" {
		compliance.ReferringPage = answers["referring_page"]
	}

	return LeadRecord{
		SessionID:   sess.ID,
		Category:    cat.ID,
		Subcategory: sess.Subcategory,
		CampaignID:  cat.Routing.CampaignID,
		SupplierID:  cat.Routing.SupplierID,
		Answers:     answers,
		Compliance:  compliance,
		SubmittedAt: time.Now().UTC(),
	}
}

// sideChannels runs the best-effort archive insert and delivery email.
// Failures are logged, never surfaced.
func (p *Pipeline) sideChannels(ctx context.Context, leadID string, record LeadRecord, cat *schema.Category) {
	if p.archive != nil {
		if err := p.archive.Record(ctx, leadID, record); err != nil {
			p.logger.Error("marketplace: lead archive failed", "lead_id", leadID, "error", err)
		}
	}
	if p.emails != nil && cat.Routing.DeliveryEmail != "" {
		msg := notify.EmailMessage{
			To:      cat.Routing.DeliveryEmail,
			Subject: fmt.Sprintf("New %s lead %s", cat.Label, leadID),
			Body:    leadEmailBody(leadID, record),
		}
		if err := p.emails.Send(ctx, msg); err != nil {
			p.logger.Error("marketplace: lead notification failed", "lead_id", leadID, "error", err)
		}
	}
}

func leadEmailBody(leadID string, record LeadRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead %s (%s / %s)\n", leadID, record.Category, record.Subcategory)
	fmt.Fprintf(&b, "Campaign %s, supplier %s\n\n", record.CampaignID, record.SupplierID)

	names := make([]string, 0, len(record.Answers))
	for name := range record.Answers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, record.Answers[name])
	}
	return b.String()
}
