package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/qualitech/esgqm/internal/qms/service"
)

// UserHandler exposes the profile directory for assignee pickers.
type UserHandler struct {
	userSvc *service.UserService
}

func NewUserHandler(userSvc *service.UserService) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

// List GET /users
func (h *UserHandler) List(c *gin.Context) {
	items, err := h.userSvc.List(c.Request.Context(), GetCompanyID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// Get GET /users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.userSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, user)
}
