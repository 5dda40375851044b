package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/qualitech/esgqm/internal/qms/service"
)

// TaskHandler exposes the personal task dashboard.
type TaskHandler struct {
	taskSvc *service.TaskService
}

func NewTaskHandler(taskSvc *service.TaskService) *TaskHandler {
	return &TaskHandler{taskSvc: taskSvc}
}

// ListMine GET /my/tasks
// Optional filters: task_type, status.
func (h *TaskHandler) ListMine(c *gin.Context) {
	filters := map[string]string{}
	for _, key := range []string{"task_type", "status"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}

	items, err := h.taskSvc.ListMyTasks(c.Request.Context(), GetCompanyID(c), GetUserID(c), filters)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// ListByNC GET /non-conformities/:id/tasks
func (h *TaskHandler) ListByNC(c *gin.Context) {
	items, err := h.taskSvc.ListByNC(c.Request.Context(), GetCompanyID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// Complete POST /my/tasks/:taskId/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	task, err := h.taskSvc.CompleteTask(c.Request.Context(), GetCompanyID(c), c.Param("taskId"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, task)
}
