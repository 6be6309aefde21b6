package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	barrelentity "github.com/bitfantasy/hevea/internal/barrel/entity"
	collectionentity "github.com/bitfantasy/hevea/internal/collection/entity"
	"github.com/bitfantasy/hevea/internal/middleware"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "hevea-jwt-secret-key-2025"

// SetupTestDB 基于内存sqlite的隔离测试库，每个测试独立迁移、自动清理
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&collectionentity.Supplier{},
		&collectionentity.CollectionRequest{},
		&barrelentity.Barrel{},
		&barrelentity.DamageTicket{},
		&barrelentity.RepairJob{},
		&audit.ActivityLog{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": userID + "@test.com",
		"roles": roles,
		"iss":   "hevea",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// ManagerToken returns a token for a test manager
func ManagerToken() string {
	return GenerateTestToken("test-manager-001", "Test Manager", []string{"manager"})
}

// AccountantToken returns a token for a test accountant
func AccountantToken() string {
	return GenerateTestToken("test-accountant-001", "Test Accountant", []string{"accountant"})
}

// FieldStaffToken returns a token for a test field staff user
func FieldStaffToken(userID string) string {
	return GenerateTestToken(userID, "Test Field Staff", []string{"field_staff"})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedSupplier creates a test supplier in the database
func SeedSupplier(t *testing.T, db *gorm.DB, code, name string, allowanceKg float64) *collectionentity.Supplier {
	t.Helper()
	supplier := &collectionentity.Supplier{
		ID:          uuid.New().String()[:32],
		Code:        code,
		Name:        name,
		AllowanceKg: allowanceKg,
		Status:      "active",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.Create(supplier).Error; err != nil {
		t.Fatalf("Failed to seed test supplier: %v", err)
	}
	return supplier
}

// SeedBarrel creates a test barrel in the database
func SeedBarrel(t *testing.T, db *gorm.DB, code string, capacityKg float64) *barrelentity.Barrel {
	t.Helper()
	barrel := &barrelentity.Barrel{
		ID:         uuid.New().String()[:32],
		Code:       code,
		CapacityKg: capacityKg,
		Condition:  barrelentity.ConditionOK,
		Zone:       barrelentity.ZoneFactory,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := db.Create(barrel).Error; err != nil {
		t.Fatalf("Failed to seed test barrel: %v", err)
	}
	return barrel
}
