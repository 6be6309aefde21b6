package service

import (
	"math"
	"strings"
)

// =============================================================================
// 发票推导 — 纯函数，唯一的写入发生在verify转换处
// =============================================================================

// Round2 保留两位小数（四舍五入）
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DeriveInvoice 根据总量、干胶含量和市场价推导干胶量与应付金额
//
//	dryKg  = totalVolumeKg × drcPercent / 100（保留两位小数）
//	amount = dryKg × marketRate，四舍五入到整数货币单位
func DeriveInvoice(totalVolumeKg, drcPercent, marketRate float64) (dryKg, amount float64) {
	dryKg = Round2(totalVolumeKg * drcPercent / 100)
	amount = math.Floor(dryKg*marketRate + 0.5)
	return dryKg, amount
}

// InvoiceNumber 由采集单ID生成发票号："INV-" + ID末8位大写
// 只在verify时调用一次，之后禁止重新生成
func InvoiceNumber(requestID string) string {
	id := requestID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return "INV-" + strings.ToUpper(id)
}
