package mirror

import (
	"testing"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNC() *entity.NonConformity {
	responsible := "user-resp-001"
	approver := "user-appr-001"
	parent := "nc-0001"
	due := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	closed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	approved := time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC)
	stage1 := time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)
	stage2 := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	stage3 := time.Date(2025, 1, 18, 10, 0, 0, 0, time.UTC)

	return &entity.NonConformity{
		ID:                "nc-0001",
		NCNumber:          "NC-20250110-4821",
		CompanyID:         "company-001",
		Title:             "Vazamento de efluente",
		Description:       "Vazamento detectado na estação de tratamento",
		Category:          "Ambiental",
		Severity:          entity.SeverityHigh,
		Source:            "Auditoria Interna",
		DamageLevel:       "Moderado",
		DetectedDate:      time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Status:            entity.NCStatusInProgress,
		CurrentStage:      4,
		Stage1CompletedAt: &stage1,
		Stage2CompletedAt: &stage2,
		Stage3CompletedAt: &stage3,
		RevisionNumber:    1,
		ParentNCID:        &parent,
		ResponsibleUserID: &responsible,
		ApprovedByUserID:  &approver,
		ApprovalDate:      &approved,
		ApprovalNotes:     "Aprovado após revisão do plano",
		RootCauseAnalysis: "Junta de vedação fora de especificação",
		CorrectiveActions: "Substituir junta e revisar fornecedor",
		PreventiveActions: "Inspeção de recebimento por lote",
		DueDate:           &due,
		CompletionDate:    &closed,
		CreatedBy:         "user-resp-001",
		CreatedAt:         time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC),
		UpdatedAt:         time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestToRecordMapsContractFields(t *testing.T) {
	nc := sampleNC()
	rec := ToRecord(nc)

	assert.Equal(t, nc.ID, rec.SourceID)
	assert.Equal(t, nc.NCNumber, rec.Code)
	assert.Equal(t, nc.CompanyID, rec.Company)
	assert.Equal(t, nc.Source, rec.Origin)
	assert.Equal(t, "2025-01-10", rec.DetectedAt)
	assert.Equal(t, 4, rec.Stage)
	assert.Equal(t, 1, rec.Revision)
	assert.Equal(t, "user-resp-001", rec.ResponsibleID)
	assert.Equal(t, "user-appr-001", rec.ApproverID)
	assert.Equal(t, "2025-02-10T12:00:00Z", rec.DueAt)
	assert.Equal(t, "2025-03-01T09:30:00Z", rec.ClosedAt)
	assert.Equal(t, "Moderado", rec.DamageLevel)
	assert.Equal(t, "nc-0001", rec.ParentID)
	assert.Equal(t, "Junta de vedação fora de especificação", rec.RootCause)
	require.Len(t, rec.StageDoneAt, 6)
	assert.Equal(t, "2025-01-11T10:00:00Z", rec.StageDoneAt[0])
	assert.Equal(t, "2025-01-18T10:00:00Z", rec.StageDoneAt[2])
	assert.Empty(t, rec.StageDoneAt[3])
}

func TestToRecordCoercesEmptyCategory(t *testing.T) {
	nc := sampleNC()
	nc.Category = ""

	rec := ToRecord(nc)
	assert.Equal(t, "Geral", rec.Category)
}

func TestToRecordOmitsOptionalFields(t *testing.T) {
	nc := sampleNC()
	nc.ResponsibleUserID = nil
	nc.ApprovedByUserID = nil
	nc.DueDate = nil
	nc.CompletionDate = nil

	rec := ToRecord(nc)
	assert.Empty(t, rec.ResponsibleID)
	assert.Empty(t, rec.ApproverID)
	assert.Empty(t, rec.DueAt)
	assert.Empty(t, rec.ClosedAt)
}

// The fixture uses whole-second UTC times, so the record's RFC 3339
// encoding loses nothing and the round trip reproduces the row exactly.
func TestToEntityRoundTrip(t *testing.T) {
	nc := sampleNC()
	got := ToEntity(ToRecord(nc))

	assert.Equal(t, *nc, got)
}

func TestToEntityRestoresStageStamps(t *testing.T) {
	nc := sampleNC()
	got := ToEntity(ToRecord(nc))

	require.NotNil(t, got.Stage1CompletedAt)
	assert.True(t, nc.Stage1CompletedAt.Equal(*got.Stage1CompletedAt))
	require.NotNil(t, got.Stage3CompletedAt)
	assert.True(t, nc.Stage3CompletedAt.Equal(*got.Stage3CompletedAt))
	assert.Nil(t, got.Stage4CompletedAt)
	assert.Nil(t, got.Stage6CompletedAt)
}

func TestToEntityKeepsCoercedCategory(t *testing.T) {
	nc := sampleNC()
	nc.Category = ""

	got := ToEntity(ToRecord(nc))
	assert.Equal(t, "Geral", got.Category)
}
