package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/xuri/excelize/v2"
)

// ReportService 结算报表导出
type ReportService struct {
	requestRepo  *repository.RequestRepository
	supplierRepo *repository.SupplierRepository
}

func NewReportService(requestRepo *repository.RequestRepository, supplierRepo *repository.SupplierRepository) *ReportService {
	return &ReportService{requestRepo: requestRepo, supplierRepo: supplierRepo}
}

// SettlementXLSX 导出供应商某月已开票采集单的结算对账表
func (s *ReportService) SettlementXLSX(ctx context.Context, supplierID, month string) ([]byte, string, error) {
	supplier, err := s.supplierRepo.FindByID(ctx, supplierID)
	if err != nil {
		return nil, "", err
	}

	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, "", apperr.Validation("月份格式应为YYYY-MM")
	}
	end := start.AddDate(0, 1, 0)

	requests, err := s.requestRepo.FindInvoicedBySupplier(ctx, supplierID, start, end)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Settlement"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"采集单号", "发票号", "开票日期", "采集量(kg)", "DRC(%)", "干胶量(kg)", "市场价", "金额"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	var totalAmount, totalDry float64
	for row, req := range requests {
		values := []interface{}{req.ReqCode, req.InvoiceNo, "", nil, nil, nil, nil, nil}
		if req.InvoicedAt != nil {
			values[2] = req.InvoicedAt.Format("2006-01-02")
		}
		if req.TotalVolumeKg != nil {
			values[3] = *req.TotalVolumeKg
		}
		if req.DRCPercent != nil {
			values[4] = *req.DRCPercent
		}
		if req.DryKg != nil {
			values[5] = *req.DryKg
			totalDry += *req.DryKg
		}
		if req.MarketRate != nil {
			values[6] = *req.MarketRate
		}
		if req.Amount != nil {
			values[7] = *req.Amount
			totalAmount += *req.Amount
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	// 合计行
	sumRow := len(requests) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", sumRow), "合计")
	f.SetCellValue(sheet, fmt.Sprintf("F%d", sumRow), totalDry)
	f.SetCellValue(sheet, fmt.Sprintf("H%d", sumRow), totalAmount)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("写入xlsx失败: %w", err)
	}

	filename := fmt.Sprintf("settlement_%s_%s.xlsx", supplier.Code, month)
	return buf.Bytes(), filename, nil
}
