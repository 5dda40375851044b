package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"github.com/qualitech/esgqm/internal/qms/service"
	"go.uber.org/zap"
)

// Handlers bundles the HTTP layer for route registration.
type Handlers struct {
	NC   *NCHandler
	Task *TaskHandler
	User *UserHandler
}

func NewHandlers(services *service.Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		NC:   NewNCHandler(services.NC, services.Workflow, services.Effectiveness, services.Evidence, logger),
		Task: NewTaskHandler(services.Task),
		User: NewUserHandler(services.User),
	}
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError maps service-layer failures to the response envelope.
// Validation messages pass through; everything else gets a generic message
// so store internals never leak to clients.
func RespondError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err):
		BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "registro não encontrado")
	case errors.Is(err, repository.ErrRevisionConflict):
		Conflict(c, "registro alterado por outra operação, tente novamente")
	default:
		InternalError(c, "erro interno do servidor")
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetCompanyID(c *gin.Context) string {
	companyID, _ := c.Get("company_id")
	if id, ok := companyID.(string); ok {
		return id
	}
	return ""
}

// IsAdmin reports whether the caller carries the tenant-admin role.
func IsAdmin(c *gin.Context) bool {
	roles, _ := c.Get("roles")
	list, ok := roles.([]string)
	if !ok {
		return false
	}
	for _, r := range list {
		if r == "qms_admin" {
			return true
		}
	}
	return false
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
