package handler

import (
	"github.com/bitfantasy/hevea/internal/barrel/service"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/gin-gonic/gin"
)

// TicketHandler 损坏工单处理器
type TicketHandler struct {
	conditionSvc *service.ConditionService
}

func NewTicketHandler(conditionSvc *service.ConditionService) *TicketHandler {
	return &TicketHandler{conditionSvc: conditionSvc}
}

// List GET /tickets
func (h *TicketHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":      c.Query("status"),
		"barrel_id":   c.Query("barrel_id"),
		"damage_type": c.Query("damage_type"),
	}

	items, total, err := h.conditionSvc.ListTickets(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: TotalPages(total, pageSize),
		},
	})
}

// Get GET /tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.conditionSvc.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ticket)
}

// Create POST /barrels/:id/tickets
func (h *TicketHandler) Create(c *gin.Context) {
	var req service.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	ticket, err := h.conditionSvc.CreateTicket(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, ticket)
}

// Assign PUT /tickets/:id/assign
func (h *TicketHandler) Assign(c *gin.Context) {
	var req service.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	ticket, err := h.conditionSvc.AssignTicket(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ticket)
}
