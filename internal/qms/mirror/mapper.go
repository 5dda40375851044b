package mirror

import (
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
)

// Record is the mirror store's contract shape for a non-conformity. It
// carries the complete business-field set of the primary row so a
// mirror-served read agrees with a primary-served one. Field names differ
// from the primary row on purpose (the mirror predates the current schema)
// and several optional primary fields are required here, so the mapper
// renames and coerces, never drops.
type Record struct {
	SourceID string `json:"sourceId"` // primary-store row id, the sync key
	Code     string `json:"code"`     // ncNumber
	Company  string `json:"company"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"` // required on the mirror side
	Severity    string `json:"severity"`
	Origin      string `json:"origin"` // primary's "source"
	DamageLevel string `json:"damageLevel,omitempty"`
	DetectedAt  string `json:"detectedAt"`

	Status   string `json:"status"`
	Stage    int    `json:"stage"`
	Revision int    `json:"revision"`
	ParentID string `json:"parentId,omitempty"` // reopen-chain origin

	// Per-stage completion stamps, index stage-1. Empty string for a
	// stage not yet completed.
	StageDoneAt []string `json:"stageDoneAt,omitempty"`

	ResponsibleID string `json:"responsibleId,omitempty"`
	ApproverID    string `json:"approverId,omitempty"`
	ApprovedAt    string `json:"approvedAt,omitempty"`
	ApprovalNotes string `json:"approvalNotes,omitempty"`

	RootCause         string `json:"rootCause,omitempty"`
	CorrectiveActions string `json:"correctiveActions,omitempty"`
	PreventiveActions string `json:"preventiveActions,omitempty"`
	EffectivenessNote string `json:"effectivenessNote,omitempty"`
	EffectivenessAt   string `json:"effectivenessAt,omitempty"`

	ReportedBy string `json:"reportedBy,omitempty"` // primary's createdBy
	DueAt      string `json:"dueAt,omitempty"`
	ClosedAt   string `json:"closedAt,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt"`
}

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339

	// defaultCategory backs the mirror's required category field when the
	// primary row left it blank.
	defaultCategory = "Geral"
)

// ToRecord maps a primary row to the mirror contract.
func ToRecord(nc *entity.NonConformity) Record {
	rec := Record{
		SourceID:          nc.ID,
		Code:              nc.NCNumber,
		Company:           nc.CompanyID,
		Title:             nc.Title,
		Description:       nc.Description,
		Category:          nc.Category,
		Severity:          nc.Severity,
		Origin:            nc.Source,
		DamageLevel:       nc.DamageLevel,
		DetectedAt:        nc.DetectedDate.Format(dateLayout),
		Status:            nc.Status,
		Stage:             nc.CurrentStage,
		Revision:          nc.RevisionNumber,
		ApprovalNotes:     nc.ApprovalNotes,
		RootCause:         nc.RootCauseAnalysis,
		CorrectiveActions: nc.CorrectiveActions,
		PreventiveActions: nc.PreventiveActions,
		EffectivenessNote: nc.EffectivenessEvaluation,
		ReportedBy:        nc.CreatedBy,
		CreatedAt:         nc.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:         nc.UpdatedAt.UTC().Format(timeLayout),
	}

	if rec.Category == "" {
		rec.Category = defaultCategory
	}
	rec.StageDoneAt = make([]string, entity.StageEffectiveness)
	for stage := entity.StageRegistration; stage <= entity.StageEffectiveness; stage++ {
		if at := nc.StageCompletedAt(stage); at != nil {
			rec.StageDoneAt[stage-1] = at.UTC().Format(timeLayout)
		}
	}
	if nc.ParentNCID != nil {
		rec.ParentID = *nc.ParentNCID
	}
	if nc.ResponsibleUserID != nil {
		rec.ResponsibleID = *nc.ResponsibleUserID
	}
	if nc.ApprovedByUserID != nil {
		rec.ApproverID = *nc.ApprovedByUserID
	}
	if nc.ApprovalDate != nil {
		rec.ApprovedAt = nc.ApprovalDate.UTC().Format(timeLayout)
	}
	if nc.EffectivenessDate != nil {
		rec.EffectivenessAt = nc.EffectivenessDate.UTC().Format(timeLayout)
	}
	if nc.DueDate != nil {
		rec.DueAt = nc.DueDate.UTC().Format(timeLayout)
	}
	if nc.CompletionDate != nil {
		rec.ClosedAt = nc.CompletionDate.UTC().Format(timeLayout)
	}

	return rec
}

// ToEntity maps a mirror record back to the primary row shape, field for
// field. A record seeded by ToRecord reproduces the full business row.
func ToEntity(rec Record) entity.NonConformity {
	nc := entity.NonConformity{
		ID:                      rec.SourceID,
		NCNumber:                rec.Code,
		CompanyID:               rec.Company,
		Title:                   rec.Title,
		Description:             rec.Description,
		Category:                rec.Category,
		Severity:                rec.Severity,
		Source:                  rec.Origin,
		DamageLevel:             rec.DamageLevel,
		Status:                  rec.Status,
		CurrentStage:            rec.Stage,
		RevisionNumber:          rec.Revision,
		ApprovalNotes:           rec.ApprovalNotes,
		RootCauseAnalysis:       rec.RootCause,
		CorrectiveActions:       rec.CorrectiveActions,
		PreventiveActions:       rec.PreventiveActions,
		EffectivenessEvaluation: rec.EffectivenessNote,
		CreatedBy:               rec.ReportedBy,
	}

	if t, err := time.Parse(dateLayout, rec.DetectedAt); err == nil {
		nc.DetectedDate = t
	}
	for i, stamp := range rec.StageDoneAt {
		if stamp == "" {
			continue
		}
		if t, err := time.Parse(timeLayout, stamp); err == nil {
			nc.MarkStageCompleted(i+1, t)
		}
	}
	if rec.ParentID != "" {
		id := rec.ParentID
		nc.ParentNCID = &id
	}
	if rec.ResponsibleID != "" {
		id := rec.ResponsibleID
		nc.ResponsibleUserID = &id
	}
	if rec.ApproverID != "" {
		id := rec.ApproverID
		nc.ApprovedByUserID = &id
	}
	if rec.ApprovedAt != "" {
		if t, err := time.Parse(timeLayout, rec.ApprovedAt); err == nil {
			nc.ApprovalDate = &t
		}
	}
	if rec.EffectivenessAt != "" {
		if t, err := time.Parse(timeLayout, rec.EffectivenessAt); err == nil {
			nc.EffectivenessDate = &t
		}
	}
	if rec.DueAt != "" {
		if t, err := time.Parse(timeLayout, rec.DueAt); err == nil {
			nc.DueDate = &t
		}
	}
	if rec.ClosedAt != "" {
		if t, err := time.Parse(timeLayout, rec.ClosedAt); err == nil {
			nc.CompletionDate = &t
		}
	}
	if rec.CreatedAt != "" {
		if t, err := time.Parse(timeLayout, rec.CreatedAt); err == nil {
			nc.CreatedAt = t
		}
	}
	if t, err := time.Parse(timeLayout, rec.UpdatedAt); err == nil {
		nc.UpdatedAt = t
	}

	return nc
}
