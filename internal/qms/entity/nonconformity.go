package entity

import (
	"time"
)

// NonConformity is the central record of the corrective-action workflow.
// The row in the primary store is authoritative; the mirror store holds a
// best-effort copy keyed by this row's ID (sourceId on the mirror side).
type NonConformity struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	NCNumber  string `json:"nc_number" gorm:"size:32;uniqueIndex;not null"`
	CompanyID string `json:"company_id" gorm:"size:32;index;not null"`

	// Classification
	Title        string    `json:"title" gorm:"size:256;not null"`
	Description  string    `json:"description" gorm:"type:text"`
	Category     string    `json:"category" gorm:"size:64"`
	Severity     string    `json:"severity" gorm:"size:20;not null"` // Baixa/Média/Alta/Crítica
	Source       string    `json:"source" gorm:"size:64"`
	DamageLevel  string    `json:"damage_level" gorm:"size:20"`
	DetectedDate time.Time `json:"detected_date"`

	// Workflow state
	Status            string     `json:"status" gorm:"size:32;default:Aberta"`
	CurrentStage      int        `json:"current_stage" gorm:"default:1"` // 1..6
	Stage1CompletedAt *time.Time `json:"stage1_completed_at"`
	Stage2CompletedAt *time.Time `json:"stage2_completed_at"`
	Stage3CompletedAt *time.Time `json:"stage3_completed_at"`
	Stage4CompletedAt *time.Time `json:"stage4_completed_at"`
	Stage5CompletedAt *time.Time `json:"stage5_completed_at"`
	Stage6CompletedAt *time.Time `json:"stage6_completed_at"`
	DueDate           *time.Time `json:"due_date"`
	CompletionDate    *time.Time `json:"completion_date"`

	// Reopen chain. RevisionNumber counts reopen cycles; ParentNCID links a
	// reopened record back to its origin (self-reference, set on first reopen).
	RevisionNumber int     `json:"revision_number" gorm:"default:0"`
	ParentNCID     *string `json:"parent_nc_id" gorm:"size:32"`

	// People
	ResponsibleUserID *string    `json:"responsible_user_id" gorm:"size:32"`
	ApprovedByUserID  *string    `json:"approved_by_user_id" gorm:"size:32"`
	ApprovalDate      *time.Time `json:"approval_date"`
	ApprovalNotes     string     `json:"approval_notes" gorm:"type:text"`

	// Analysis fields, filled in progressively per stage
	RootCauseAnalysis       string     `json:"root_cause_analysis" gorm:"type:text"`
	CorrectiveActions       string     `json:"corrective_actions" gorm:"type:text"`
	PreventiveActions       string     `json:"preventive_actions" gorm:"type:text"`
	EffectivenessEvaluation string     `json:"effectiveness_evaluation" gorm:"type:text"`
	EffectivenessDate       *time.Time `json:"effectiveness_date"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined by the enrichment stage, never stored
	Responsible *UserRef `json:"responsible,omitempty" gorm:"-"`
	ApprovedBy  *UserRef `json:"approved_by,omitempty" gorm:"-"`
}

func (NonConformity) TableName() string {
	return "qms_non_conformities"
}

// UserRef is the identity join shape produced by enrichment.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Workflow stages
const (
	StageRegistration    = 1
	StageImmediateAction = 2
	StageCauseAnalysis   = 3
	StagePlanning        = 4
	StageImplementation  = 5
	StageEffectiveness   = 6
)

// Lifecycle status labels (free text, product vocabulary)
const (
	NCStatusOpen       = "Aberta"
	NCStatusInProgress = "Em Andamento"
	NCStatusApproved   = "Aprovada"
	NCStatusClosed     = "Concluída"
)

// Severity levels
const (
	SeverityLow      = "Baixa"
	SeverityMedium   = "Média"
	SeverityHigh     = "Alta"
	SeverityCritical = "Crítica"
)

// StageCompletedAt returns the completion timestamp slot for a stage,
// or nil for a stage outside 1..6.
func (n *NonConformity) StageCompletedAt(stage int) *time.Time {
	switch stage {
	case StageRegistration:
		return n.Stage1CompletedAt
	case StageImmediateAction:
		return n.Stage2CompletedAt
	case StageCauseAnalysis:
		return n.Stage3CompletedAt
	case StagePlanning:
		return n.Stage4CompletedAt
	case StageImplementation:
		return n.Stage5CompletedAt
	case StageEffectiveness:
		return n.Stage6CompletedAt
	}
	return nil
}

// MarkStageCompleted stamps the completion time of a stage.
func (n *NonConformity) MarkStageCompleted(stage int, at time.Time) {
	switch stage {
	case StageRegistration:
		n.Stage1CompletedAt = &at
	case StageImmediateAction:
		n.Stage2CompletedAt = &at
	case StageCauseAnalysis:
		n.Stage3CompletedAt = &at
	case StagePlanning:
		n.Stage4CompletedAt = &at
	case StageImplementation:
		n.Stage5CompletedAt = &at
	case StageEffectiveness:
		n.Stage6CompletedAt = &at
	}
}

// ClearStagesFrom resets the completion stamps from the given stage onward.
// The reopen transition uses it to wipe stages 3..6.
func (n *NonConformity) ClearStagesFrom(stage int) {
	if stage <= StageCauseAnalysis {
		n.Stage3CompletedAt = nil
	}
	if stage <= StagePlanning {
		n.Stage4CompletedAt = nil
	}
	if stage <= StageImplementation {
		n.Stage5CompletedAt = nil
	}
	if stage <= StageEffectiveness {
		n.Stage6CompletedAt = nil
	}
	if stage <= StageImmediateAction {
		n.Stage2CompletedAt = nil
	}
	if stage <= StageRegistration {
		n.Stage1CompletedAt = nil
	}
}
