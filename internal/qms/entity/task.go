package entity

import (
	"time"
)

// Task is a generated follow-up work item tied to one workflow stage of an NC.
type Task struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	CompanyID string `json:"company_id" gorm:"size:32;index;not null"`
	NCID      string `json:"nc_id" gorm:"size:32;index;not null"`
	NCNumber  string `json:"nc_number" gorm:"size:32"`

	TaskType   string `json:"task_type" gorm:"size:32;not null"` // see TaskType* constants
	Stage      int    `json:"stage" gorm:"not null"`
	NCRevision int    `json:"nc_revision" gorm:"default:0"`

	Title       string     `json:"title" gorm:"size:256;not null"`
	Description string     `json:"description" gorm:"type:text"`
	AssigneeID  *string    `json:"assignee_id" gorm:"size:32;index"`
	DueDate     *time.Time `json:"due_date"`
	Priority    string     `json:"priority" gorm:"size:20;default:Normal"` // Urgente/Alta/Normal/Baixa
	Status      string     `json:"status" gorm:"size:20;default:Pendente"` // Pendente/Em Andamento/Concluída/Cancelada

	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy *string    `json:"completed_by" gorm:"size:32"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Computed at read time, never stored: Atrasada / Hoje / "N dias"
	Deadline string `json:"deadline,omitempty" gorm:"-"`
}

func (Task) TableName() string {
	return "qms_tasks"
}

// Task types, one per workflow stage
const (
	TaskTypeRegistration    = "registration"
	TaskTypeImmediateAction = "immediate_action"
	TaskTypeCauseAnalysis   = "cause_analysis"
	TaskTypePlanning        = "planning"
	TaskTypeImplementation  = "implementation"
	TaskTypeEffectiveness   = "effectiveness"
)

// Task statuses
const (
	TaskStatusPending    = "Pendente"
	TaskStatusInProgress = "Em Andamento"
	TaskStatusDone       = "Concluída"
	TaskStatusCancelled  = "Cancelada"
)

// Task priorities
const (
	TaskPriorityUrgent = "Urgente"
	TaskPriorityHigh   = "Alta"
	TaskPriorityNormal = "Normal"
	TaskPriorityLow    = "Baixa"
)

// Open reports whether the task still counts against its deadline.
func (t *Task) Open() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
}
