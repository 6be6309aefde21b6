package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/collection/service"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/bitfantasy/hevea/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRequestTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	quota := service.NewQuotaGuard(repos.Supplier, repos.Request)
	recorder := audit.NewRecorder(db)
	notifier := notify.NewDispatcher(nil, zap.NewNop())
	svc := service.NewWorkflowService(repos.Request, repos.Supplier, quota, recorder, notifier, zap.NewNop())
	h := NewRequestHandler(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1/lcs")
	api.GET("/requests/:id", h.Get)
	api.GET("/requests/:id/timeline", h.Timeline)
	api.POST("/requests", h.Create)
	api.PUT("/requests/:id/assign-field", h.AssignFieldStaff)
	api.PUT("/requests/:id/collect", h.Collect)

	return db, router
}

func TestRequestCreateAndAssign(t *testing.T) {
	db, router := setupRequestTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)

	supplierToken := testutil.GenerateTestToken("user-supplier", "供应商A", []string{"supplier"})
	managerToken := testutil.ManagerToken()

	// 供应商申报
	w := testutil.DoRequest(router, http.MethodPost, "/api/v1/lcs/requests", map[string]interface{}{
		"supplier_id": supplier.ID,
		"quantity_kg": 200,
	}, supplierToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["status"] != "requested" {
		t.Fatalf("expected status requested, got %v", data["status"])
	}
	requestID := data["id"].(string)

	// 未认证 → 401
	w2 := testutil.DoRequest(router, http.MethodGet, "/api/v1/lcs/requests/"+requestID, nil, "")
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w2.Code)
	}

	// 供应商试图指派采胶员 → 403，业务码40300
	w3 := testutil.DoRequest(router, http.MethodPut, "/api/v1/lcs/requests/"+requestID+"/assign-field",
		map[string]interface{}{"staff_id": "user-field"}, supplierToken)
	if w3.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w3.Code, w3.Body.String())
	}
	resp3 := testutil.ParseResponse(w3)
	if resp3["code"].(float64) != 40300 {
		t.Fatalf("expected code 40300, got %v", resp3["code"])
	}

	// 经理指派成功
	w4 := testutil.DoRequest(router, http.MethodPut, "/api/v1/lcs/requests/"+requestID+"/assign-field",
		map[string]interface{}{"staff_id": "user-field"}, managerToken)
	if w4.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w4.Code, w4.Body.String())
	}
	resp4 := testutil.ParseResponse(w4)
	data4 := resp4["data"].(map[string]interface{})
	if data4["status"] != "field_assigned" {
		t.Fatalf("expected field_assigned, got %v", data4["status"])
	}

	// 重复指派 → 409，业务码40900
	w5 := testutil.DoRequest(router, http.MethodPut, "/api/v1/lcs/requests/"+requestID+"/assign-field",
		map[string]interface{}{"staff_id": "user-field"}, managerToken)
	if w5.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w5.Code, w5.Body.String())
	}
	resp5 := testutil.ParseResponse(w5)
	if resp5["code"].(float64) != 40900 {
		t.Fatalf("expected code 40900, got %v", resp5["code"])
	}

	// 时间线包含申报与指派两条记录
	w6 := testutil.DoRequest(router, http.MethodGet, "/api/v1/lcs/requests/"+requestID+"/timeline", nil, managerToken)
	if w6.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w6.Code)
	}
	resp6 := testutil.ParseResponse(w6)
	logs := resp6["data"].([]interface{})
	if len(logs) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(logs))
	}
}

func TestRequestNotFound(t *testing.T) {
	_, router := setupRequestTest(t)
	token := testutil.ManagerToken()

	w := testutil.DoRequest(router, http.MethodGet, "/api/v1/lcs/requests/nonexistent", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40400 {
		t.Fatalf("expected code 40400, got %v", resp["code"])
	}
}
