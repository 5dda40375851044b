package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/mirror"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePrimary is an in-memory authoritative store.
type fakePrimary struct {
	mu    sync.Mutex
	rows  map[string]*entity.NonConformity
	fail  bool
	calls int
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{rows: map[string]*entity.NonConformity{}}
}

func (p *fakePrimary) FindAll(ctx context.Context, companyID string, filters map[string]string) ([]entity.NonConformity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("primary down")
	}
	var items []entity.NonConformity
	for _, nc := range p.rows {
		if nc.CompanyID == companyID {
			items = append(items, *nc)
		}
	}
	return items, nil
}

func (p *fakePrimary) FindByID(ctx context.Context, companyID, id string) (*entity.NonConformity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("primary down")
	}
	nc, ok := p.rows[id]
	if !ok || nc.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	copied := *nc
	return &copied, nil
}

func (p *fakePrimary) Create(ctx context.Context, nc *entity.NonConformity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("primary down")
	}
	copied := *nc
	p.rows[nc.ID] = &copied
	return nil
}

func (p *fakePrimary) Update(ctx context.Context, nc *entity.NonConformity) error {
	return p.Create(ctx, nc)
}

func (p *fakePrimary) UpdateWithRevisionCheck(ctx context.Context, nc *entity.NonConformity, expectedRevision int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.rows[nc.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.RevisionNumber != expectedRevision {
		return repository.ErrRevisionConflict
	}
	copied := *nc
	p.rows[nc.ID] = &copied
	return nil
}

func (p *fakePrimary) Delete(ctx context.Context, companyID, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rows, id)
	return nil
}

// fakeMirror records upserts and can be forced to fail every call.
type fakeMirror struct {
	mu      sync.Mutex
	records map[string]mirror.Record
	fail    bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{records: map[string]mirror.Record{}}
}

func (m *fakeMirror) List(ctx context.Context, companyID string) ([]mirror.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mirror down")
	}
	var items []mirror.Record
	for _, rec := range m.records {
		if rec.Company == companyID {
			items = append(items, rec)
		}
	}
	return items, nil
}

func (m *fakeMirror) Get(ctx context.Context, sourceID string) (*mirror.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mirror down")
	}
	rec, ok := m.records[sourceID]
	if !ok {
		return nil, mirror.ErrMiss
	}
	return &rec, nil
}

func (m *fakeMirror) Upsert(ctx context.Context, rec mirror.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mirror down")
	}
	m.records[rec.SourceID] = rec
	return nil
}

func (m *fakeMirror) Delete(ctx context.Context, companyID, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mirror down")
	}
	delete(m.records, sourceID)
	return nil
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fakeDirectory struct {
	users map[string]string
}

func (d *fakeDirectory) FindByIDs(ctx context.Context, ids []string) ([]entity.User, error) {
	var items []entity.User
	for _, id := range ids {
		if name, ok := d.users[id]; ok {
			items = append(items, entity.User{ID: id, Name: name})
		}
	}
	return items, nil
}

func testNC(id, companyID string) *entity.NonConformity {
	responsible := "user-001"
	return &entity.NonConformity{
		ID:                id,
		NCNumber:          "NC-20250110-" + id,
		CompanyID:         companyID,
		Title:             "Teste",
		Severity:          entity.SeverityHigh,
		Status:            entity.NCStatusOpen,
		CurrentStage:      1,
		DetectedDate:      time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		ResponsibleUserID: &responsible,
	}
}

func newTestGateway(primary *fakePrimary, mirrorStore mirror.Store) *SyncGateway {
	return NewSyncGateway(primary, mirrorStore, &fakeDirectory{users: map[string]string{"user-001": "Maria Silva"}}, DefaultStrategy(), zap.NewNop())
}

func TestCreateSucceedsWithFailingMirror(t *testing.T) {
	primary := newFakePrimary()
	m := newFakeMirror()
	m.fail = true
	gw := newTestGateway(primary, m)

	nc := testNC("nc-1", "company-1")
	err := gw.Create(context.Background(), nc)
	gw.Drain()

	require.NoError(t, err)
	assert.NotEmpty(t, nc.ID)
	_, ok := primary.rows["nc-1"]
	assert.True(t, ok)
	assert.Equal(t, 0, m.count())
}

func TestCreateBackfillsMirror(t *testing.T) {
	primary := newFakePrimary()
	m := newFakeMirror()
	gw := newTestGateway(primary, m)

	require.NoError(t, gw.Create(context.Background(), testNC("nc-1", "company-1")))
	gw.Drain()

	assert.Equal(t, 1, m.count())
}

func TestListFallsBackWhenMirrorFails(t *testing.T) {
	primary := newFakePrimary()
	require.NoError(t, primary.Create(context.Background(), testNC("nc-1", "company-1")))
	m := newFakeMirror()
	m.fail = true
	gw := newTestGateway(primary, m)

	items, err := gw.List(context.Background(), "company-1", nil)
	gw.Drain()

	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListServesFromMirrorWithoutPrimary(t *testing.T) {
	primary := newFakePrimary()
	m := newFakeMirror()
	gw := newTestGateway(primary, m)

	require.NoError(t, gw.Create(context.Background(), testNC("nc-1", "company-1")))
	gw.Drain()

	primary.fail = true
	items, err := gw.List(context.Background(), "company-1", nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "nc-1", items[0].ID)
}

func TestListColdMirrorBackfills(t *testing.T) {
	primary := newFakePrimary()
	require.NoError(t, primary.Create(context.Background(), testNC("nc-1", "company-1")))
	require.NoError(t, primary.Create(context.Background(), testNC("nc-2", "company-1")))
	m := newFakeMirror()
	gw := newTestGateway(primary, m)

	items, err := gw.List(context.Background(), "company-1", nil)
	gw.Drain()

	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, m.count())
}

func TestGetMissFallsBackAndSeedsMirror(t *testing.T) {
	primary := newFakePrimary()
	require.NoError(t, primary.Create(context.Background(), testNC("nc-1", "company-1")))
	m := newFakeMirror()
	gw := newTestGateway(primary, m)

	nc, err := gw.Get(context.Background(), "company-1", "nc-1")
	gw.Drain()

	require.NoError(t, err)
	assert.Equal(t, "nc-1", nc.ID)
	assert.Equal(t, 1, m.count())
}

func TestGetEnforcesTenantOnMirrorHit(t *testing.T) {
	primary := newFakePrimary()
	m := newFakeMirror()
	gw := newTestGateway(primary, m)

	require.NoError(t, gw.Create(context.Background(), testNC("nc-1", "company-1")))
	gw.Drain()

	_, err := gw.Get(context.Background(), "company-2", "nc-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetNotFoundInBothStores(t *testing.T) {
	gw := newTestGateway(newFakePrimary(), newFakeMirror())

	_, err := gw.Get(context.Background(), "company-1", "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// fullNC populates every business field with whole-second UTC times, so a
// mirror round trip has no excuse to diverge.
func fullNC(id, companyID string) *entity.NonConformity {
	nc := testNC(id, companyID)
	parent := "nc-origin"
	approved := time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC)
	stage1 := time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)
	stage2 := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	due := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)

	nc.Description = "Desvio no procedimento de carga"
	nc.Category = "Operacional"
	nc.DamageLevel = "Moderado"
	nc.Status = entity.NCStatusInProgress
	nc.CurrentStage = 3
	nc.Stage1CompletedAt = &stage1
	nc.Stage2CompletedAt = &stage2
	nc.RevisionNumber = 1
	nc.ParentNCID = &parent
	nc.ApprovedByUserID = nc.ResponsibleUserID
	nc.ApprovalDate = &approved
	nc.ApprovalNotes = "Plano aprovado"
	nc.RootCauseAnalysis = "Falha no procedimento de carga"
	nc.CorrectiveActions = "Revisar checklist de carga"
	nc.PreventiveActions = "Treinamento da equipe de turno"
	nc.DueDate = &due
	nc.CreatedBy = "user-001"
	nc.CreatedAt = time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC)
	nc.UpdatedAt = time.Date(2025, 1, 18, 9, 0, 0, 0, time.UTC)
	return nc
}

// Two successive gets must agree on the whole business row even though the
// first is primary-served and the second comes from the mirror it seeded.
func TestGetIsIdempotent(t *testing.T) {
	primary := newFakePrimary()
	require.NoError(t, primary.Create(context.Background(), fullNC("nc-1", "company-1")))
	gw := newTestGateway(primary, newFakeMirror())

	first, err := gw.Get(context.Background(), "company-1", "nc-1")
	require.NoError(t, err)
	gw.Drain()

	// second read is served by the mirror seeded above
	second, err := gw.Get(context.Background(), "company-1", "nc-1")
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
}

func TestGetFromMirrorKeepsAnalysisAndStageFields(t *testing.T) {
	primary := newFakePrimary()
	seeded := fullNC("nc-1", "company-1")
	require.NoError(t, primary.Create(context.Background(), seeded))
	gw := newTestGateway(primary, newFakeMirror())

	_, err := gw.Get(context.Background(), "company-1", "nc-1")
	require.NoError(t, err)
	gw.Drain()

	primary.fail = true
	nc, err := gw.Get(context.Background(), "company-1", "nc-1")
	require.NoError(t, err)

	assert.Equal(t, "Falha no procedimento de carga", nc.RootCauseAnalysis)
	assert.Equal(t, "Revisar checklist de carga", nc.CorrectiveActions)
	assert.Equal(t, "Treinamento da equipe de turno", nc.PreventiveActions)
	assert.Equal(t, "Moderado", nc.DamageLevel)
	require.NotNil(t, nc.ParentNCID)
	assert.Equal(t, "nc-origin", *nc.ParentNCID)
	require.NotNil(t, nc.Stage1CompletedAt)
	assert.True(t, seeded.Stage1CompletedAt.Equal(*nc.Stage1CompletedAt))
	require.NotNil(t, nc.ApprovalDate)
	assert.Equal(t, "Plano aprovado", nc.ApprovalNotes)
	assert.Nil(t, nc.Stage3CompletedAt)
}

func TestGetEnrichesResponsible(t *testing.T) {
	primary := newFakePrimary()
	require.NoError(t, primary.Create(context.Background(), testNC("nc-1", "company-1")))
	gw := newTestGateway(primary, newFakeMirror())

	nc, err := gw.Get(context.Background(), "company-1", "nc-1")
	gw.Drain()

	require.NoError(t, err)
	require.NotNil(t, nc.Responsible)
	assert.Equal(t, "Maria Silva", nc.Responsible.DisplayName)
}

func TestDeleteRemovesMirrorCopy(t *testing.T) {
	primary := newFakePrimary()
	m := newFakeMirror()
	gw := newTestGateway(primary, m)

	require.NoError(t, gw.Create(context.Background(), testNC("nc-1", "company-1")))
	gw.Drain()
	require.Equal(t, 1, m.count())

	require.NoError(t, gw.Delete(context.Background(), "company-1", "nc-1"))
	gw.Drain()
	assert.Equal(t, 0, m.count())
}

func TestUpdateWithRevisionCheckConflict(t *testing.T) {
	primary := newFakePrimary()
	gw := newTestGateway(primary, newFakeMirror())

	nc := testNC("nc-1", "company-1")
	require.NoError(t, gw.Create(context.Background(), nc))

	stale := *nc
	stale.RevisionNumber = 1
	require.NoError(t, gw.UpdateWithRevisionCheck(context.Background(), &stale, 0))

	again := *nc
	again.RevisionNumber = 1
	err := gw.UpdateWithRevisionCheck(context.Background(), &again, 0)
	gw.Drain()

	assert.ErrorIs(t, err, repository.ErrRevisionConflict)
}

func TestDisabledMirrorGoesStraightToPrimary(t *testing.T) {
	primary := newFakePrimary()
	require.NoError(t, primary.Create(context.Background(), testNC("nc-1", "company-1")))

	gw := NewSyncGateway(primary, nil, nil, DefaultStrategy(), zap.NewNop())

	items, err := gw.List(context.Background(), "company-1", nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
