package handler

import (
	"strconv"

	"github.com/bitfantasy/hevea/internal/barrel/service"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/gin-gonic/gin"
)

// Handlers 木桶域处理器集合
type Handlers struct {
	Barrel *BarrelHandler
	Ticket *TicketHandler
	Repair *RepairHandler
}

// NewHandlers 创建木桶域处理器集合
func NewHandlers(svcs *service.Services) *Handlers {
	return &Handlers{
		Barrel: NewBarrelHandler(svcs.Barrel, svcs.Condition),
		Ticket: NewTicketHandler(svcs.Condition),
		Repair: NewRepairHandler(svcs.Repair),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError 按错误类别返回可区分的错误码
func RespondError(c *gin.Context, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		InternalError(c, err.Error())
		return
	}
	switch kind {
	case apperr.KindValidation:
		Error(c, 40000, err.Error())
	case apperr.KindAuthorization:
		Error(c, 40300, err.Error())
	case apperr.KindNotFound:
		Error(c, 40400, err.Error())
	case apperr.KindConflict:
		Error(c, 40900, err.Error())
	case apperr.KindQuotaExceeded:
		Error(c, 42900, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
