package handler

import (
	"net/http"

	"github.com/bitfantasy/hevea/internal/collection/service"
	"github.com/gin-gonic/gin"
)

// DashboardHandler 仪表盘与报表处理器
type DashboardHandler struct {
	dashboardSvc *service.DashboardService
	reportSvc    *service.ReportService
}

func NewDashboardHandler(dashboardSvc *service.DashboardService, reportSvc *service.ReportService) *DashboardHandler {
	return &DashboardHandler{dashboardSvc: dashboardSvc, reportSvc: reportSvc}
}

// Stats GET /dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.dashboardSvc.Stats(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, stats)
}

// SettlementExport GET /reports/settlement?supplier_id=&month=YYYY-MM
func (h *DashboardHandler) SettlementExport(c *gin.Context) {
	supplierID := c.Query("supplier_id")
	month := c.Query("month")
	if supplierID == "" || month == "" {
		BadRequest(c, "supplier_id和month不能为空")
		return
	}

	data, filename, err := h.reportSvc.SettlementXLSX(c.Request.Context(), supplierID, month)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
