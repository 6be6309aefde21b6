package handler

import (
	"github.com/bitfantasy/hevea/internal/barrel/service"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/gin-gonic/gin"
)

// BarrelHandler 木桶台账处理器
type BarrelHandler struct {
	barrelSvc    *service.BarrelService
	conditionSvc *service.ConditionService
}

func NewBarrelHandler(barrelSvc *service.BarrelService, conditionSvc *service.ConditionService) *BarrelHandler {
	return &BarrelHandler{barrelSvc: barrelSvc, conditionSvc: conditionSvc}
}

// List GET /barrels
func (h *BarrelHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"condition": c.Query("condition"),
		"zone":      c.Query("zone"),
		"search":    c.Query("search"),
	}

	items, total, err := h.barrelSvc.List(c.Request.Context(), page, pageSize, filters)
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

// Get GET /barrels/:id
func (h *BarrelHandler) Get(c *gin.Context) {
	barrel, err := h.barrelSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, barrel)
}

// Timeline GET /barrels/:id/timeline
func (h *BarrelHandler) Timeline(c *gin.Context) {
	logs, err := h.barrelSvc.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, logs)
}

// Create POST /barrels
func (h *BarrelHandler) Create(c *gin.Context) {
	var req service.CreateBarrelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	barrel, err := h.barrelSvc.Create(c.Request.Context(), auth.FromContext(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, barrel)
}

// Move PUT /barrels/:id/move
func (h *BarrelHandler) Move(c *gin.Context) {
	var req service.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	barrel, err := h.barrelSvc.Move(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, barrel)
}

// SetVolume PUT /barrels/:id/volume
func (h *BarrelHandler) SetVolume(c *gin.Context) {
	var req service.SetVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	barrel, err := h.barrelSvc.SetVolume(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, barrel)
}

// UpdateWeights PUT /barrels/:id/weights
func (h *BarrelHandler) UpdateWeights(c *gin.Context) {
	var req service.UpdateWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	barrel, err := h.conditionSvc.UpdateWeights(c.Request.Context(), auth.FromContext(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, barrel)
}
