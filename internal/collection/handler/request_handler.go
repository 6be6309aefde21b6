package handler

import (
	"github.com/bitfantasy/hevea/internal/collection/service"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/gin-gonic/gin"
)

// RequestHandler 采集单处理器
type RequestHandler struct {
	svc *service.WorkflowService
}

func NewRequestHandler(svc *service.WorkflowService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// List GET /requests
func (h *RequestHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"supplier_id":       c.Query("supplier_id"),
		"status":            c.Query("status"),
		"field_staff_id":    c.Query("field_staff_id"),
		"delivery_staff_id": c.Query("delivery_staff_id"),
		"search":            c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
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

// Get GET /requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Timeline GET /requests/:id/timeline
func (h *RequestHandler) Timeline(c *gin.Context) {
	logs, err := h.svc.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, logs)
}

// Create POST /requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.Create(c.Request.Context(), auth.FromContext(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, record)
}

// AssignFieldStaff PUT /requests/:id/assign-field
func (h *RequestHandler) AssignFieldStaff(c *gin.Context) {
	var req service.AssignStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.AssignFieldStaff(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Collect PUT /requests/:id/collect
func (h *RequestHandler) Collect(c *gin.Context) {
	var req service.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.Collect(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// AssignDeliveryStaff PUT /requests/:id/assign-delivery
func (h *RequestHandler) AssignDeliveryStaff(c *gin.Context) {
	var req service.AssignStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.AssignDeliveryStaff(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Deliver PUT /requests/:id/deliver
func (h *RequestHandler) Deliver(c *gin.Context) {
	record, err := h.svc.Deliver(c.Request.Context(), auth.FromContext(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Test PUT /requests/:id/test
func (h *RequestHandler) Test(c *gin.Context) {
	var req service.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.Test(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Calculate PUT /requests/:id/calculate
func (h *RequestHandler) Calculate(c *gin.Context) {
	var req service.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.Calculate(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Verify PUT /requests/:id/verify
func (h *RequestHandler) Verify(c *gin.Context) {
	record, err := h.svc.Verify(c.Request.Context(), auth.FromContext(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Reject PUT /requests/:id/reject
func (h *RequestHandler) Reject(c *gin.Context) {
	var req service.ReviewRequest
	c.ShouldBindJSON(&req)

	record, err := h.svc.Reject(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// Return PUT /requests/:id/return
func (h *RequestHandler) Return(c *gin.Context) {
	var req service.ReviewRequest
	c.ShouldBindJSON(&req)

	record, err := h.svc.ReturnToAccountant(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}

// MarkInvoiced PUT /requests/:id/mark-invoiced
func (h *RequestHandler) MarkInvoiced(c *gin.Context) {
	record, err := h.svc.MarkInvoiced(c.Request.Context(), auth.FromContext(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, record)
}
