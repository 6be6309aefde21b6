package handler

import (
	"github.com/bitfantasy/hevea/internal/barrel/service"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/gin-gonic/gin"
)

// RepairHandler 修复任务处理器
type RepairHandler struct {
	repairSvc *service.RepairService
}

func NewRepairHandler(repairSvc *service.RepairService) *RepairHandler {
	return &RepairHandler{repairSvc: repairSvc}
}

// List GET /repairs
func (h *RepairHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":    c.Query("status"),
		"barrel_id": c.Query("barrel_id"),
		"job_type":  c.Query("job_type"),
	}

	items, total, err := h.repairSvc.List(c.Request.Context(), page, pageSize, filters)
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

// Get GET /repairs/:id
func (h *RepairHandler) Get(c *gin.Context) {
	job, err := h.repairSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, job)
}

// Open POST /barrels/:id/repairs
func (h *RepairHandler) Open(c *gin.Context) {
	var req service.OpenRepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	job, err := h.repairSvc.Open(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, job)
}

// AppendWorkLog POST /repairs/:id/worklog
func (h *RepairHandler) AppendWorkLog(c *gin.Context) {
	var req service.WorkLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	job, err := h.repairSvc.AppendWorkLog(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, job)
}

// Complete PUT /repairs/:id/complete
func (h *RepairHandler) Complete(c *gin.Context) {
	job, err := h.repairSvc.Complete(c.Request.Context(), auth.FromContext(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, job)
}

// Approve PUT /repairs/:id/approve
func (h *RepairHandler) Approve(c *gin.Context) {
	job, err := h.repairSvc.Approve(c.Request.Context(), auth.FromContext(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, job)
}

// Reject PUT /repairs/:id/reject
func (h *RepairHandler) Reject(c *gin.Context) {
	var req service.RejectRepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	job, err := h.repairSvc.Reject(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, job)
}
