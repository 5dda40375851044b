package service

import (
	"context"
	"testing"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"github.com/qualitech/esgqm/internal/qms/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNCNumberFormat(t *testing.T) {
	detected := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	number := GenerateNCNumber(detected, time.Now())
	assert.Regexp(t, `^NC-20250110-\d{4}$`, number)
}

func TestCreateRejectsInvalidSeverity(t *testing.T) {
	env := setupEnv(t)

	_, err := env.svcs.NC.Create(context.Background(), testutil.TestCompanyID, "user-001", &CreateNCRequest{
		Title:        "Teste",
		Description:  "Descrição",
		Severity:     "Gigante",
		Source:       "Auditoria",
		DetectedDate: "2025-01-10",
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCreateRejectsInvalidDetectedDate(t *testing.T) {
	env := setupEnv(t)

	_, err := env.svcs.NC.Create(context.Background(), testutil.TestCompanyID, "user-001", &CreateNCRequest{
		Title:        "Teste",
		Description:  "Descrição",
		Severity:     entity.SeverityLow,
		Source:       "Auditoria",
		DetectedDate: "10/01/2025",
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCreateDefaultsResponsibleToCreator(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)

	require.NotNil(t, nc.ResponsibleUserID)
	assert.Equal(t, "user-001", *nc.ResponsibleUserID)
}

func TestDueDateScalesWithSeverity(t *testing.T) {
	env := setupEnv(t)

	critical := env.createNC(t, entity.SeverityCritical)
	low := env.createNC(t, entity.SeverityLow)

	require.NotNil(t, critical.DueDate)
	require.NotNil(t, low.DueDate)
	assert.True(t, critical.DueDate.Before(*low.DueDate))
}

func TestListFiltersBySeverity(t *testing.T) {
	env := setupEnv(t)
	env.createNC(t, entity.SeverityCritical)
	env.createNC(t, entity.SeverityLow)

	items, err := env.svcs.NC.List(context.Background(), testutil.TestCompanyID, map[string]string{
		"severity": entity.SeverityCritical,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entity.SeverityCritical, items[0].Severity)
}

func TestListIsTenantScoped(t *testing.T) {
	env := setupEnv(t)
	env.createNC(t, entity.SeverityMedium)

	items, err := env.svcs.NC.List(context.Background(), "another-company", nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUpdateIgnoresWorkflowState(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)

	updated, err := env.svcs.NC.Update(context.Background(), nc.CompanyID, nc.ID, &UpdateNCRequest{
		Title: "Título corrigido",
	})
	require.NoError(t, err)

	assert.Equal(t, "Título corrigido", updated.Title)
	assert.Equal(t, nc.NCNumber, updated.NCNumber)
	assert.Equal(t, nc.CurrentStage, updated.CurrentStage)
	assert.Equal(t, nc.RevisionNumber, updated.RevisionNumber)
}

func TestApproveSetsApprovalFields(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)

	approved, err := env.svcs.NC.Approve(context.Background(), nc.CompanyID, nc.ID, "user-boss", "plano adequado")
	require.NoError(t, err)

	assert.Equal(t, entity.NCStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedByUserID)
	assert.Equal(t, "user-boss", *approved.ApprovedByUserID)
	assert.NotNil(t, approved.ApprovalDate)
	assert.Equal(t, "plano adequado", approved.ApprovalNotes)
}

func TestApproveRejectsResponsibleAsApprover(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)

	// createNC makes user-001 the responsible
	_, err := env.svcs.NC.Approve(context.Background(), nc.CompanyID, nc.ID, "user-001", "auto-aprovação")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "responsável")
}

func TestCloseRefusedBeforeStageSix(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)

	_, err := env.svcs.NC.Close(context.Background(), nc.CompanyID, nc.ID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCloseRefusedWithoutEffectiveEvaluation(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)
	nc = env.advanceTo(t, nc, entity.StageEffectiveness)

	_, err := env.svcs.NC.Close(context.Background(), nc.CompanyID, nc.ID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCloseSucceedsAfterEffectiveEvaluation(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)
	nc = env.advanceTo(t, nc, entity.StageEffectiveness)

	effective := true
	rec, err := env.repos.Effectiveness.FindPendingByNC(context.Background(), nc.CompanyID, nc.ID, 0)
	require.NoError(t, err)
	rec.IsEffective = &effective
	rec.Evidence = "sem recorrência"
	require.NoError(t, env.repos.Effectiveness.Update(context.Background(), rec))

	closed, err := env.svcs.NC.Close(context.Background(), nc.CompanyID, nc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.NCStatusClosed, closed.Status)
	assert.NotNil(t, closed.CompletionDate)
}

func TestDeleteRefusedForClosedNC(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)
	nc = env.advanceTo(t, nc, entity.StageEffectiveness)

	effective := true
	_, err := env.svcs.Effectiveness.Evaluate(context.Background(), nc.CompanyID, nc.ID, "user-002", &EvaluateRequest{
		IsEffective: &effective,
		Evidence:    "sem recorrência",
	})
	require.NoError(t, err)

	err = env.svcs.NC.Delete(context.Background(), nc.CompanyID, nc.ID, false, false)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// force without the admin role is still refused
	err = env.svcs.NC.Delete(context.Background(), nc.CompanyID, nc.ID, true, false)
	require.Error(t, err)

	// forced admin delete goes through
	err = env.svcs.NC.Delete(context.Background(), nc.CompanyID, nc.ID, true, true)
	require.NoError(t, err)

	_, err = env.repos.NC.FindByID(context.Background(), nc.CompanyID, nc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteCancelsOpenTasks(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityMedium)

	require.NoError(t, env.svcs.NC.Delete(context.Background(), nc.CompanyID, nc.ID, false, false))

	tasks, err := env.repos.Task.FindByNC(context.Background(), nc.CompanyID, nc.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, entity.TaskStatusCancelled, task.Status)
	}
}
