package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"deskify/internal/models"
	"deskify/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TicketHandler 工单入口。创建/更新会同步触发自动分配，
// 分配失败只记录日志，不影响工单本身。
type TicketHandler struct {
	db         *gorm.DB
	logger     *logrus.Logger
	assignment *services.AssignmentService
}

func NewTicketHandler(db *gorm.DB, logger *logrus.Logger, assignment *services.AssignmentService) *TicketHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &TicketHandler{db: db, logger: logger, assignment: assignment}
}

// TicketCreateRequest 创建工单
type TicketCreateRequest struct {
	Tenant      string                  `json:"tenant" binding:"required"`
	TicketType  models.TicketType       `json:"ticket_type" binding:"required"`
	Title       string                  `json:"title" binding:"required"`
	Description string                  `json:"description"`
	Attributes  services.TicketSnapshot `json:"attributes"`
}

// TicketUpdateRequest 更新工单；属性变更会按 EDIT 事件重跑分配
type TicketUpdateRequest struct {
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	Status      *string                 `json:"status"`
	Attributes  services.TicketSnapshot `json:"attributes"`
}

// CreateTicket 创建工单并触发 CREATE 事件的自动分配
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req TicketCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	attrs, err := encodeAttributes(req.Attributes)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid attributes", Message: err.Error()})
		return
	}

	ticket := &models.Ticket{
		Tenant:      req.Tenant,
		TicketType:  req.TicketType,
		Title:       req.Title,
		Description: req.Description,
		Attributes:  attrs,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(ticket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create ticket", Message: err.Error()})
		return
	}

	h.runAssignment(c, ticket, models.TriggerCreate)
	c.JSON(http.StatusCreated, ticket)
}

// UpdateTicket 更新工单并触发 EDIT 事件的自动分配
func (h *TicketHandler) UpdateTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}

	var req TicketUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	var ticket models.Ticket
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND tenant = ?", id, c.Query("tenant")).
		First(&ticket).Error; err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get ticket", Message: err.Error()})
		return
	}

	if req.Title != nil {
		ticket.Title = *req.Title
	}
	if req.Description != nil {
		ticket.Description = *req.Description
	}
	if req.Status != nil {
		ticket.Status = *req.Status
	}
	attrsChanged := false
	if req.Attributes != nil {
		attrs, err := encodeAttributes(req.Attributes)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid attributes", Message: err.Error()})
			return
		}
		ticket.Attributes = attrs
		attrsChanged = true
	}

	if err := h.db.WithContext(c.Request.Context()).Save(&ticket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to update ticket", Message: err.Error()})
		return
	}

	if attrsChanged {
		h.runAssignment(c, &ticket, models.TriggerEdit)
	}
	c.JSON(http.StatusOK, ticket)
}

// GetTicket 获取工单
func (h *TicketHandler) GetTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}

	var ticket models.Ticket
	err = h.db.WithContext(c.Request.Context()).
		Preload("Assignee").
		Preload("Group").
		Where("id = ? AND tenant = ?", id, c.Query("tenant")).
		First(&ticket).Error
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get ticket", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// runAssignment 执行自动分配；任何失败都不向调用方传播
func (h *TicketHandler) runAssignment(c *gin.Context, ticket *models.Ticket, event models.TriggerEvent) {
	result, err := h.assignment.AssignTicket(c.Request.Context(), ticket, event)
	if err != nil {
		if errors.Is(err, services.ErrNoRuleMatched) {
			h.logger.Debugf("ticket %d: no assignment rule matched", ticket.ID)
		} else {
			h.logger.Warnf("ticket %d: auto assignment failed: %v", ticket.ID, err)
		}
		return
	}
	ticket.AssigneeID = &result.Technician.ID
	groupID := result.Group.ID
	ticket.GroupID = &groupID
}

func encodeAttributes(snap services.TicketSnapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// RegisterTicketRoutes 注册路由
func RegisterTicketRoutes(r *gin.RouterGroup, handler *TicketHandler) {
	tickets := r.Group("/tickets")
	{
		tickets.POST("", handler.CreateTicket)
		tickets.GET(":id", handler.GetTicket)
		tickets.PUT(":id", handler.UpdateTicket)
	}
}
