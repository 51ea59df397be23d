package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"deskify/internal/models"
	"deskify/internal/services"

	"github.com/gin-gonic/gin"
)

// RuleHandler 管理自动分配规则
// 说明：所有操作按 tenant + ticket_type 范围隔离。
type RuleHandler struct {
	service *services.RuleService
}

func NewRuleHandler(service *services.RuleService) *RuleHandler {
	return &RuleHandler{service: service}
}

// ListRules 按优先级顺序返回规则列表
func (h *RuleHandler) ListRules(c *gin.Context) {
	tenant := c.Query("tenant")
	ticketType := models.TicketType(c.Query("ticket_type"))
	if tenant == "" || ticketType == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "tenant and ticket_type are required"})
		return
	}

	rules, err := h.service.ListRules(c.Request.Context(), tenant, ticketType)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrPriorityCorrupt) {
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetRule 获取单条规则
func (h *RuleHandler) GetRule(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}

	rule, err := h.service.GetRule(c.Request.Context(), c.Query("tenant"), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则，优先级自动追加到末尾
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req services.RuleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), &req)
	if err != nil {
		c.JSON(ruleErrorStatus(err), ErrorResponse{Error: "Failed to create rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}

	var req services.RuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), c.Query("tenant"), id, &req)
	if err != nil {
		c.JSON(ruleErrorStatus(err), ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 软删除规则并压缩后续优先级
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), c.Query("tenant"), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ReorderRequest 批量调序请求
type ReorderRequest struct {
	Tenant      string                        `json:"tenant" binding:"required"`
	TicketType  models.TicketType             `json:"ticket_type" binding:"required"`
	Assignments []services.PriorityAssignment `json:"assignments" binding:"required"`
}

// ReorderPriorities 批量调整优先级；任一项非法则整体拒绝
func (h *RuleHandler) ReorderPriorities(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	err := h.service.ReorderPriorities(c.Request.Context(), req.Tenant, req.TicketType, req.Assignments)
	if err != nil {
		var pve *services.PriorityValidationError
		if errors.As(err, &pve) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "Reorder rejected",
				"violations": pve.Violations,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to reorder rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "reordered"})
}

// GetPossibleValues 返回规则条件可选的字段值域快照
func (h *RuleHandler) GetPossibleValues(c *gin.Context) {
	tenant := c.Query("tenant")
	ticketType := models.TicketType(c.Query("ticket_type"))
	if tenant == "" || ticketType == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "tenant and ticket_type are required"})
		return
	}

	domain, err := h.service.GetPossibleValues(c.Request.Context(), tenant, ticketType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load values", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fields": services.CatalogFields(),
		"values": domain,
	})
}

// ruleErrorStatus 将构建期错误映射为 HTTP 状态码
func ruleErrorStatus(err error) int {
	var invalidField *services.InvalidFieldError
	var dupField *services.DuplicateFieldError
	var invalidValue *services.InvalidValueError
	var scopeErr *services.ScopeError
	switch {
	case errors.As(err, &invalidField), errors.As(err, &dupField), errors.As(err, &invalidValue), errors.As(err, &scopeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRuleNotFound), errors.Is(err, services.ErrGroupNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}

// RegisterRuleRoutes 注册路由
func RegisterRuleRoutes(r *gin.RouterGroup, handler *RuleHandler) {
	rules := r.Group("/assignment-rules")
	{
		rules.GET("", handler.ListRules)
		rules.POST("", handler.CreateRule)
		rules.GET("/possible-values", handler.GetPossibleValues)
		rules.PUT("/reorder", handler.ReorderPriorities)
		rules.GET(":id", handler.GetRule)
		rules.PUT(":id", handler.UpdateRule)
		rules.DELETE(":id", handler.DeleteRule)
	}
}
