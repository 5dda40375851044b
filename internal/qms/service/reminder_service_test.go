package service

import (
	"context"
	"testing"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnceSchedulesReminderForDuePostponement(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityHigh)
	nc = env.advanceTo(t, nc, entity.StageEffectiveness)

	// backdate the postponement so the scan finds it due
	rec, err := env.repos.Effectiveness.FindPendingByNC(context.Background(), nc.CompanyID, nc.ID, 0)
	require.NoError(t, err)
	past := time.Now().AddDate(0, 0, -1)
	rec.PostponedTo = &past
	rec.PostponedReason = "aguardando dados de produção"
	require.NoError(t, env.repos.Effectiveness.Update(context.Background(), rec))

	require.NoError(t, env.svcs.Reminder.RunOnce(context.Background(), time.Now()))

	reminder, err := env.repos.Task.FindOpenReminder(context.Background(), nc.CompanyID, nc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskTypeEffectiveness, reminder.TaskType)
	require.NotNil(t, reminder.DueDate)
	assert.Equal(t, time.Now().Format("2006-01-02"), reminder.DueDate.Format("2006-01-02"))
}

func TestRunOnceIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityHigh)
	nc = env.advanceTo(t, nc, entity.StageEffectiveness)

	rec, err := env.repos.Effectiveness.FindPendingByNC(context.Background(), nc.CompanyID, nc.ID, 0)
	require.NoError(t, err)
	past := time.Now().AddDate(0, 0, -2)
	rec.PostponedTo = &past
	require.NoError(t, env.repos.Effectiveness.Update(context.Background(), rec))

	require.NoError(t, env.svcs.Reminder.RunOnce(context.Background(), time.Now()))
	require.NoError(t, env.svcs.Reminder.RunOnce(context.Background(), time.Now()))

	tasks, err := env.repos.Task.FindByNC(context.Background(), nc.CompanyID, nc.ID)
	require.NoError(t, err)

	var reminders int
	for _, task := range tasks {
		if task.TaskType == entity.TaskTypeEffectiveness && task.Open() {
			reminders++
		}
	}
	assert.Equal(t, 1, reminders)
}

func TestRunOnceIgnoresDecidedRecords(t *testing.T) {
	env := setupEnv(t)
	nc := env.createNC(t, entity.SeverityHigh)
	nc = env.advanceTo(t, nc, entity.StageEffectiveness)

	effective := true
	_, err := env.svcs.Effectiveness.Evaluate(context.Background(), nc.CompanyID, nc.ID, "user-002", &EvaluateRequest{
		IsEffective: &effective,
		Evidence:    "sem recorrência",
	})
	require.NoError(t, err)

	require.NoError(t, env.svcs.Reminder.RunOnce(context.Background(), time.Now()))

	// evaluation also cancelled the open tasks; nothing should be revived
	tasks, err := env.repos.Task.FindByNC(context.Background(), nc.CompanyID, nc.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.False(t, task.Open())
	}
}
