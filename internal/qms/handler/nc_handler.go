package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qualitech/esgqm/internal/qms/service"
	"go.uber.org/zap"
)

// NCHandler exposes the non-conformity lifecycle over HTTP.
type NCHandler struct {
	ncSvc       *service.NCService
	workflowSvc *service.WorkflowService
	effSvc      *service.EffectivenessService
	evidenceSvc *service.EvidenceService
	logger      *zap.Logger
}

func NewNCHandler(ncSvc *service.NCService, workflowSvc *service.WorkflowService, effSvc *service.EffectivenessService, evidenceSvc *service.EvidenceService, logger *zap.Logger) *NCHandler {
	return &NCHandler{ncSvc: ncSvc, workflowSvc: workflowSvc, effSvc: effSvc, evidenceSvc: evidenceSvc, logger: logger}
}

// List GET /non-conformities
// Optional filters: status, severity, category, stage, responsible_user_id.
// Pagination happens after the store read; the mirror has no offset cursor.
func (h *NCHandler) List(c *gin.Context) {
	filters := map[string]string{}
	for _, key := range []string{"status", "severity", "category", "stage", "responsible_user_id"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}

	items, err := h.ncSvc.List(c.Request.Context(), GetCompanyID(c), filters)
	if err != nil {
		RespondError(c, err)
		return
	}

	page, pageSize := GetPagination(c)
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	Success(c, ListResponse{
		Items: items[start:end],
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (total + pageSize - 1) / pageSize,
		},
	})
}

// Get GET /non-conformities/:id
func (h *NCHandler) Get(c *gin.Context) {
	nc, err := h.ncSvc.Get(c.Request.Context(), GetCompanyID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nc)
}

// Create POST /non-conformities
func (h *NCHandler) Create(c *gin.Context) {
	var req service.CreateNCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "dados inválidos: "+err.Error())
		return
	}

	nc, err := h.ncSvc.Create(c.Request.Context(), GetCompanyID(c), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, nc)
}

// Update PUT /non-conformities/:id
func (h *NCHandler) Update(c *gin.Context) {
	var req service.UpdateNCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "dados inválidos: "+err.Error())
		return
	}

	nc, err := h.ncSvc.Update(c.Request.Context(), GetCompanyID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nc)
}

// Delete DELETE /non-conformities/:id
// Closed NCs require ?force=true and the tenant-admin role.
func (h *NCHandler) Delete(c *gin.Context) {
	force := c.Query("force") == "true"
	err := h.ncSvc.Delete(c.Request.Context(), GetCompanyID(c), c.Param("id"), force, IsAdmin(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

// Approve POST /non-conformities/:id/approve
func (h *NCHandler) Approve(c *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	// body optional
	_ = c.ShouldBindJSON(&req)

	nc, err := h.ncSvc.Approve(c.Request.Context(), GetCompanyID(c), c.Param("id"), GetUserID(c), req.Notes)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nc)
}

// Close POST /non-conformities/:id/close
func (h *NCHandler) Close(c *gin.Context) {
	nc, err := h.ncSvc.Close(c.Request.Context(), GetCompanyID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nc)
}

// AdvanceStage POST /non-conformities/:id/advance
func (h *NCHandler) AdvanceStage(c *gin.Context) {
	var req service.AdvanceStageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "dados inválidos: "+err.Error())
			return
		}
	}

	nc, err := h.workflowSvc.AdvanceStage(c.Request.Context(), GetCompanyID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nc)
}

// Evaluate POST /non-conformities/:id/effectiveness
func (h *NCHandler) Evaluate(c *gin.Context) {
	var req service.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "dados inválidos: "+err.Error())
		return
	}

	rec, err := h.effSvc.Evaluate(c.Request.Context(), GetCompanyID(c), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rec)
}

// Postpone POST /non-conformities/:id/effectiveness/postpone
func (h *NCHandler) Postpone(c *gin.Context) {
	var req service.PostponeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "dados inválidos: "+err.Error())
		return
	}

	rec, err := h.effSvc.Postpone(c.Request.Context(), GetCompanyID(c), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, rec)
}

// EffectivenessHistory GET /non-conformities/:id/effectiveness
func (h *NCHandler) EffectivenessHistory(c *gin.Context) {
	items, err := h.effSvc.History(c.Request.Context(), GetCompanyID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// UploadEvidence POST /non-conformities/:id/evidence (multipart)
func (h *NCHandler) UploadEvidence(c *gin.Context) {
	if !h.evidenceSvc.Enabled() {
		Error(c, 50300, "armazenamento de evidências não está configurado")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "arquivo é obrigatório")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectPath, err := h.evidenceSvc.Upload(c.Request.Context(), GetCompanyID(c), c.Param("id"),
		header.Filename, file, header.Size, contentType)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    gin.H{"object_path": objectPath},
	})
}
