package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyjurso-collab/attorney-directory/internal/notify"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
)

type fakeSubmitter struct {
	leadID string
	err    error
	delay  time.Duration

	mu      sync.Mutex
	records []LeadRecord
}

func (f *fakeSubmitter) Submit(ctx context.Context, record LeadRecord) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.leadID, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type recordingSender struct {
	sent []notify.EmailMessage
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg notify.EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func completeSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New(time.Hour)
	sess.Category = "general"
	sess.Subcategory = "other"
	sess.Stage = session.StageComplete
	for field, value := range map[string]string{
		"first_name": "Dana", "last_name": "Reyes",
		"phone": "17045550100", "email": "dana@example.com", "zip_code": "28202",
		"issue_description": "contract dispute",
		"client_ip":         "203.0.113.9",
		"user_agent":        "test-agent",
		"tcpa_consent_text": "By submitting you agree to be contacted.",
	} {
		sess.SetAnswer(field, value)
	}
	return sess
}

func newPipeline(t *testing.T, submitter Submitter, emails notify.EmailSender) (*Pipeline, *session.MemoryStore) {
	t.Helper()
	s, err := schema.LoadDefault()
	require.NoError(t, err)
	store := session.NewMemoryStore()
	return NewPipeline(s, store, nil, submitter, nil, emails, nil, nil), store
}

func TestSubmitHappyPath(t *testing.T) {
	submitter := &fakeSubmitter{leadID: "MKT-42"}
	emails := &recordingSender{}
	p, store := newPipeline(t, submitter, emails)
	ctx := context.Background()

	sess := completeSession(t)
	require.NoError(t, store.Put(ctx, sess))

	sub, err := p.Submit(ctx, sess.ID, Compliance{VerificationTokens: map[string]string{"trustedform": "tok-1"}})
	require.NoError(t, err)
	assert.Equal(t, "MKT-42", sub.LeadID)

	require.Len(t, submitter.records, 1)
	record := submitter.records[0]
	assert.Equal(t, "general", record.Category)
	assert.Equal(t, "LN-GEN-0001", record.CampaignID)
	assert.Equal(t, "Dana", record.Answers["first_name"])
	assert.Equal(t, "By submitting you agree to be contacted.", record.Compliance.ConsentText,
		"consent text backfills from the session's config answer")
	assert.Equal(t, "203.0.113.9", record.Compliance.ClientIP)
	assert.Equal(t, "tok-1", record.Compliance.VerificationTokens["trustedform"])

	updated, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StageSubmitted, updated.Stage)

	require.Len(t, emails.sent, 1)
	assert.Equal(t, "general-leads@example-marketplace.com", emails.sent[0].To)
	assert.Contains(t, emails.sent[0].Body, "first_name: Dana")
}

func TestSubmitRejectsIncompleteSession(t *testing.T) {
	p, store := newPipeline(t, &fakeSubmitter{leadID: "MKT-42"}, nil)
	ctx := context.Background()

	sess := completeSession(t)
	sess.Stage = session.StageCollecting
	require.NoError(t, store.Put(ctx, sess))

	_, err := p.Submit(ctx, sess.ID, Compliance{})
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestSubmitRejectsStageAnswerMismatch(t *testing.T) {
	p, store := newPipeline(t, &fakeSubmitter{leadID: "MKT-42"}, nil)
	ctx := context.Background()

	sess := completeSession(t)
	delete(sess.Answers, "phone")
	require.NoError(t, store.Put(ctx, sess))

	_, err := p.Submit(ctx, sess.ID, Compliance{})
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestSubmitRejectsResubmission(t *testing.T) {
	submitter := &fakeSubmitter{leadID: "MKT-42"}
	p, store := newPipeline(t, submitter, nil)
	ctx := context.Background()

	sess := completeSession(t)
	require.NoError(t, store.Put(ctx, sess))

	_, err := p.Submit(ctx, sess.ID, Compliance{})
	require.NoError(t, err)

	_, err = p.Submit(ctx, sess.ID, Compliance{})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, submitter.records, 1, "the marketplace must be called exactly once")
}

func TestSubmitConcurrentCallsDeliverOnce(t *testing.T) {
	submitter := &fakeSubmitter{leadID: "MKT-42", delay: 20 * time.Millisecond}
	p, store := newPipeline(t, submitter, nil)
	ctx := context.Background()

	sess := completeSession(t)
	require.NoError(t, store.Put(ctx, sess))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit(ctx, sess.ID, Compliance{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var accepted, duplicate int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrAlreadySubmitted):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted, "exactly one caller wins")
	assert.Equal(t, 1, duplicate, "the loser sees the submitted stage")
	assert.Equal(t, 1, submitter.callCount(), "the marketplace must be called exactly once")
}

func TestSubmitSurfacesMarketplaceRejection(t *testing.T) {
	submitter := &fakeSubmitter{err: &SubmitError{Code: "duplicate_phone", Message: "already submitted"}}
	p, store := newPipeline(t, submitter, nil)
	ctx := context.Background()

	sess := completeSession(t)
	require.NoError(t, store.Put(ctx, sess))

	_, err := p.Submit(ctx, sess.ID, Compliance{})
	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, "duplicate_phone", submitErr.Code)

	// A failed submission leaves the session retryable.
	updated, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StageComplete, updated.Stage)
}

func TestSubmitUnknownCategory(t *testing.T) {
	p, store := newPipeline(t, &fakeSubmitter{leadID: "MKT-42"}, nil)
	ctx := context.Background()

	sess := completeSession(t)
	sess.Category = "maritime_law"
	require.NoError(t, store.Put(ctx, sess))

	_, err := p.Submit(ctx, sess.ID, Compliance{})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSubmitEmailFailureIsSwallowed(t *testing.T) {
	emails := &recordingSender{err: errors.New("sendgrid down")}
	p, store := newPipeline(t, &fakeSubmitter{leadID: "MKT-42"}, emails)
	ctx := context.Background()

	sess := completeSession(t)
	require.NoError(t, store.Put(ctx, sess))

	sub, err := p.Submit(ctx, sess.ID, Compliance{})
	require.NoError(t, err)
	assert.Equal(t, "MKT-42", sub.LeadID)
}
