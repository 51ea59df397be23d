package handlers

import (
	"errors"
	"net/http"

	"deskify/internal/models"
	"deskify/internal/services"

	"github.com/gin-gonic/gin"
)

// AssignmentHandler 暴露分配引擎的只读入口：试算与审计查询。
// 真正的分配由工单创建/更新流程触发。
type AssignmentHandler struct {
	service *services.AssignmentService
}

func NewAssignmentHandler(service *services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// PreviewRequest 试算请求：传入属性快照而非已落库工单
type PreviewRequest struct {
	Tenant     string                   `json:"tenant" binding:"required"`
	TicketType models.TicketType        `json:"ticket_type" binding:"required"`
	Event      models.TriggerEvent      `json:"event"`
	Attributes services.TicketSnapshot  `json:"attributes"`
}

// Preview runs the full match/resolve/select pipeline without committing
// anything: no fairness timestamp moves, no audit row.
func (h *AssignmentHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if req.Event == "" {
		req.Event = models.TriggerCreate
	}

	result, err := h.service.FindMatchingAssignment(c.Request.Context(), req.Attributes, req.Tenant, req.TicketType, req.Event)
	if err != nil {
		if errors.Is(err, services.ErrNoRuleMatched) || errors.Is(err, services.ErrNoCandidates) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "No assignment", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Preview failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListRecords 分页查询分配审计记录
func (h *AssignmentHandler) ListRecords(c *gin.Context) {
	var req services.RecordListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	records, total, err := h.service.ListRecords(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list records", Message: err.Error()})
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
	})
}

// RegisterAssignmentRoutes 注册路由
func RegisterAssignmentRoutes(r *gin.RouterGroup, handler *AssignmentHandler) {
	asg := r.Group("/assignments")
	{
		asg.POST("/preview", handler.Preview)
		asg.GET("/records", handler.ListRecords)
	}
}
