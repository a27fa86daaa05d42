package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fin/meridian-fin/internal/pnl"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu sync.Mutex

	reports   map[uuid.UUID]*Report
	byKey     map[reportKey]uuid.UUID
	history   []StatusChange
	comments  []Comment
	reviewers []Recipient
	users     map[int64]Recipient

	nextHistoryID int64
	nextCommentID int64

	reviewerErr error
}

type reportKey struct {
	companyID   int64
	year, month int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		reports: make(map[uuid.UUID]*Report),
		byKey:   make(map[reportKey]uuid.UUID),
		users:   make(map[int64]Recipient),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Serialised like a row lock: only one transition at a time may
	// observe and mutate a report.
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetReport(ctx context.Context, id uuid.UUID) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return Report{}, shared.ErrNotFound
	}
	return *r, nil
}

func (m *mockRepository) GetReportByKey(ctx context.Context, companyID int64, year, month int) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[reportKey{companyID, year, month}]
	if !ok {
		return Report{}, shared.ErrNotFound
	}
	return *m.reports[id], nil
}

func (m *mockRepository) InsertReport(ctx context.Context, companyID int64, year, month int) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reportKey{companyID, year, month}
	if id, ok := m.byKey[key]; ok {
		return *m.reports[id], nil
	}
	r := Report{
		ID:        uuid.New(),
		CompanyID: companyID,
		Year:      year,
		Month:     month,
		Status:    StatusDraft,
		CreatedAt: time.Now(),
	}
	m.reports[r.ID] = &r
	m.byKey[key] = r.ID
	return r, nil
}

func (m *mockRepository) ListHistory(ctx context.Context, reportID uuid.UUID) ([]StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatusChange
	for _, h := range m.history {
		if h.ReportID == reportID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockRepository) ListComments(ctx context.Context, reportID uuid.UUID) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Comment
	for _, c := range m.comments {
		if c.ReportID == reportID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertCommentLocked(c)
}

func (m *mockRepository) insertCommentLocked(c Comment) (Comment, error) {
	m.nextCommentID++
	c.ID = m.nextCommentID
	m.comments = append(m.comments, c)
	return c, nil
}

func (m *mockRepository) ListCompanyReviewers(ctx context.Context, companyID int64) ([]Recipient, error) {
	if m.reviewerErr != nil {
		return nil, m.reviewerErr
	}
	return append([]Recipient(nil), m.reviewers...), nil
}

func (m *mockRepository) GetRecipient(ctx context.Context, actorID int64) (Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[actorID]
	if !ok {
		return Recipient{}, shared.ErrNotFound
	}
	return rec, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetReportForUpdate(ctx context.Context, id uuid.UUID) (Report, error) {
	r, ok := t.mock.reports[id]
	if !ok {
		return Report{}, shared.ErrNotFound
	}
	return *r, nil
}

func (t *mockTxRepo) UpdateReport(ctx context.Context, r Report) (Report, error) {
	stored, ok := t.mock.reports[r.ID]
	if !ok {
		return Report{}, shared.ErrNotFound
	}
	*stored = r
	return r, nil
}

func (t *mockTxRepo) AppendHistory(ctx context.Context, change StatusChange) error {
	t.mock.nextHistoryID++
	change.ID = t.mock.nextHistoryID
	t.mock.history = append(t.mock.history, change)
	return nil
}

func (t *mockTxRepo) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	return t.mock.insertCommentLocked(c)
}

// ============================================================================
// MOCK COLLABORATORS
// ============================================================================

type mockAuthz struct {
	accessible map[int64]map[int64]bool // actor -> company -> ok
	reviewers  map[int64]map[int64]bool
}

func (m *mockAuthz) CanAccess(ctx context.Context, actorID, companyID int64) (bool, error) {
	return m.accessible[actorID][companyID], nil
}

func (m *mockAuthz) ReviewAuthority(ctx context.Context, actorID, companyID int64) (bool, error) {
	return m.reviewers[actorID][companyID], nil
}

type mockFactSource struct {
	mu      sync.Mutex
	revenue map[reportKey]float64
	sums    pnl.Sums
	derived map[reportKey]pnl.Sums
}

func (m *mockFactSource) ActualRevenue(ctx context.Context, companyID int64, year, month int) (float64, error) {
	return m.revenue[reportKey{companyID, year, month}], nil
}

func (m *mockFactSource) ActualSums(ctx context.Context, companyID int64, year, month int) (pnl.Sums, error) {
	if m.sums == nil {
		return pnl.Sums{}, nil
	}
	return m.sums, nil
}

func (m *mockFactSource) StoreDerivedActuals(ctx context.Context, companyID int64, year, month int, sums pnl.Sums) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.derived == nil {
		m.derived = make(map[reportKey]pnl.Sums)
	}
	m.derived[reportKey{companyID, year, month}] = sums
	return nil
}

// ============================================================================
// FIXTURE
// ============================================================================

const (
	companyA = int64(1)
	companyB = int64(2)

	submitter = int64(100)
	reviewer  = int64(200)
	outsider  = int64(300)
)

func newFixture() (*Service, *mockRepository, *mockFactSource) {
	repo := newMockRepository()
	repo.reviewers = []Recipient{{ActorID: reviewer, Name: "Rina", Email: "rina@example.com"}}
	repo.users[submitter] = Recipient{ActorID: submitter, Name: "Sari", Email: "sari@example.com"}

	authz := &mockAuthz{
		accessible: map[int64]map[int64]bool{
			submitter: {companyA: true},
			reviewer:  {companyA: true},
		},
		reviewers: map[int64]map[int64]bool{
			reviewer: {companyA: true},
		},
	}
	factSrc := &mockFactSource{
		revenue: map[reportKey]float64{{companyA, 2025, 4}: 1000},
		sums:    pnl.Sums{},
	}
	svc := NewService(repo, authz, factSrc, nil, nil)
	return svc, repo, factSrc
}

func submittedReport(t *testing.T, svc *Service) Report {
	t.Helper()
	ctx := context.Background()
	report, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)
	outcome, err := svc.Submit(ctx, report.ID, submitter)
	require.NoError(t, err)
	return outcome.Report
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateOrGetDraftIdempotent(t *testing.T) {
	svc, repo, _ := newFixture()
	ctx := context.Background()

	first, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)
	second, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusDraft, second.Status)
	assert.Len(t, repo.reports, 1)
}

func TestCreateOrGetDraftCrossTenantIsNotFound(t *testing.T) {
	svc, _, _ := newFixture()

	_, err := svc.CreateOrGetDraft(context.Background(), companyB, 2025, 4, submitter)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateOrGetDraftValidatesPeriod(t *testing.T) {
	svc, _, _ := newFixture()

	_, err := svc.CreateOrGetDraft(context.Background(), companyA, 2025, 13, submitter)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSubmitHappyPath(t *testing.T) {
	svc, repo, factSrc := newFixture()
	ctx := context.Background()

	report, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)

	outcome, err := svc.Submit(ctx, report.ID, submitter)
	require.NoError(t, err)

	assert.Equal(t, StatusSubmitted, outcome.Report.Status)
	require.NotNil(t, outcome.Report.SubmittedBy)
	assert.Equal(t, submitter, *outcome.Report.SubmittedBy)
	assert.Equal(t, []int64{reviewer}, outcome.Notified)

	// One notification and one email per reviewer.
	require.Len(t, outcome.Effects, 2)
	assert.Equal(t, EffectNotification, outcome.Effects[0].Kind)
	assert.Equal(t, "REPORT_SUBMITTED", outcome.Effects[0].NotificationKind)
	assert.Equal(t, EffectEmail, outcome.Effects[1].Kind)
	assert.Equal(t, "report_submitted", outcome.Effects[1].Template)
	assert.Equal(t, "2025-04", outcome.Effects[1].Variables["period"])

	history, err := repo.ListHistory(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusDraft, history[0].From)
	assert.Equal(t, StatusSubmitted, history[0].To)

	// Derived metrics stored for audit.
	assert.Contains(t, factSrc.derived, reportKey{companyA, 2025, 4})
}

func TestSubmitRequiresRevenue(t *testing.T) {
	svc, _, factSrc := newFixture()
	ctx := context.Background()
	factSrc.revenue = map[reportKey]float64{}

	report, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, report.ID, submitter)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestSubmitTwiceFails(t *testing.T) {
	svc, _, _ := newFixture()
	report := submittedReport(t, svc)

	_, err := svc.Submit(context.Background(), report.ID, submitter)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestApproveHappyPath(t *testing.T) {
	svc, repo, _ := newFixture()
	ctx := context.Background()
	report := submittedReport(t, svc)

	outcome, err := svc.Approve(ctx, report.ID, reviewer)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, outcome.Report.Status)
	require.NotNil(t, outcome.Report.ReviewedBy)
	assert.Equal(t, reviewer, *outcome.Report.ReviewedBy)
	assert.Equal(t, []int64{submitter}, outcome.Notified)
	require.Len(t, outcome.Effects, 2)
	assert.Equal(t, "REPORT_APPROVED", outcome.Effects[0].NotificationKind)

	history, err := repo.ListHistory(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StatusSubmitted, history[1].From)
	assert.Equal(t, StatusApproved, history[1].To)
}

func TestApproveRequiresReviewAuthority(t *testing.T) {
	svc, _, _ := newFixture()
	report := submittedReport(t, svc)

	// The submitter can read the report but holds no review grant.
	_, err := svc.Approve(context.Background(), report.ID, submitter)
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

func TestApproveCrossTenantIsNotFound(t *testing.T) {
	svc, _, _ := newFixture()
	report := submittedReport(t, svc)

	_, err := svc.Approve(context.Background(), report.ID, outsider)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApproveIsTerminal(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()
	report := submittedReport(t, svc)

	_, err := svc.Approve(ctx, report.ID, reviewer)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, report.ID, reviewer)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.Reject(ctx, report.ID, reviewer, "too late")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRejectRequiresReason(t *testing.T) {
	svc, _, _ := newFixture()
	report := submittedReport(t, svc)

	_, err := svc.Reject(context.Background(), report.ID, reviewer, "  ")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRejectWritesSystemCommentAndAllowsResubmission(t *testing.T) {
	svc, repo, _ := newFixture()
	ctx := context.Background()
	report := submittedReport(t, svc)

	outcome, err := svc.Reject(ctx, report.ID, reviewer, "missing overhead detail")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, outcome.Report.Status)
	assert.Equal(t, "missing overhead detail", outcome.Report.RejectReason)
	assert.Equal(t, []int64{submitter}, outcome.Notified)

	comments, err := repo.ListComments(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.True(t, comments[0].System)
	assert.Contains(t, comments[0].Content, "missing overhead detail")

	// REJECTED → SUBMITTED is legal.
	second, err := svc.Submit(ctx, report.ID, submitter)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, second.Report.Status)
}

func TestConcurrentReviewsExactlyOneSucceeds(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()
	report := submittedReport(t, svc)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Approve(ctx, report.ID, reviewer)
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Approve(ctx, report.ID, reviewer)
		results <- err
	}()
	wg.Wait()
	close(results)

	var successes, losers int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if errors.Is(err, shared.ErrInvalidTransition) {
			losers++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one approve must win")
	assert.Equal(t, 1, losers, "the loser must get an invalid transition error")
}

func TestHistoryFormsPathThroughTransitionGraph(t *testing.T) {
	svc, repo, _ := newFixture()
	ctx := context.Background()

	report, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, report.ID, submitter)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, report.ID, reviewer, "resubmit please")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, report.ID, submitter)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, report.ID, reviewer)
	require.NoError(t, err)

	history, err := repo.ListHistory(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, h := range history {
		assert.True(t, CanTransition(h.From, h.To), "row %d: %s -> %s must be legal", i, h.From, h.To)
		if i > 0 {
			assert.Equal(t, history[i-1].To, h.From, "row %d from-status must chain", i)
		}
	}
	assert.Equal(t, StatusApproved, history[len(history)-1].To)
}

func TestAddCommentAnyStateWithReadAccess(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()
	report := submittedReport(t, svc)

	comment, err := svc.AddComment(ctx, report.ID, reviewer, "checking the numbers")
	require.NoError(t, err)
	assert.False(t, comment.System)

	_, err = svc.AddComment(ctx, report.ID, outsider, "let me in")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmitEffectFailureDoesNotFailTransition(t *testing.T) {
	svc, repo, _ := newFixture()
	ctx := context.Background()
	repo.reviewerErr = errors.New("recipient lookup down")

	report, err := svc.CreateOrGetDraft(ctx, companyA, 2025, 4, submitter)
	require.NoError(t, err)

	outcome, err := svc.Submit(ctx, report.ID, submitter)
	require.NoError(t, err, "side-effect failure must not roll back the transition")
	assert.Equal(t, StatusSubmitted, outcome.Report.Status)
	assert.Empty(t, outcome.Effects)
}

func TestCorrectionRequiredIsDeadState(t *testing.T) {
	for from := range transitions {
		assert.False(t, CanTransition(from, StatusCorrectionRequired),
			"no transition may enter CORRECTION_REQUIRED from %s", from)
	}
	assert.Empty(t, transitions[StatusCorrectionRequired])
}
