package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hugh/asset-shipper/internal/auth"
	"github.com/hugh/asset-shipper/internal/database"
	"github.com/hugh/asset-shipper/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// Logger returns a logger that only prints errors
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CreateTestAssetType registers an asset type for all tenants
func CreateTestAssetType(t *testing.T, db *gorm.DB, source, name, idField string, docIDFields ...string) *models.AssetTypeDefinition {
	t.Helper()

	if len(docIDFields) == 0 {
		docIDFields = []string{idField}
	}
	def := &models.AssetTypeDefinition{
		DataSource:  source,
		Name:        name,
		DisplayName: name,
		IDField:     idField,
		DocIDFields: docIDFields,
		Enabled:     true,
	}

	if err := db.Create(def).Error; err != nil {
		t.Fatalf("failed to create test asset type: %v", err)
	}

	return def
}

// CreateTestPolicy creates a policy targeting an asset type
func CreateTestPolicy(t *testing.T, db *gorm.DB, tenantID, source, assetType string, enabled bool) *models.Policy {
	t.Helper()

	policy := &models.Policy{
		TenantID:   tenantID,
		Name:       "policy-" + assetType,
		DataSource: source,
		AssetType:  assetType,
		Enabled:    enabled,
	}

	if err := db.Create(policy).Error; err != nil {
		t.Fatalf("failed to create test policy: %v", err)
	}

	return policy
}

// CreateTestAccount creates a named cloud account
func CreateTestAccount(t *testing.T, db *gorm.DB, tenantID, source, accountID, name string) *models.CloudAccount {
	t.Helper()

	account := &models.CloudAccount{
		TenantID:    tenantID,
		DataSource:  source,
		AccountID:   accountID,
		AccountName: name,
		IsActive:    true,
	}

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}

	return account
}

// CreateTestJobRun creates a pending job run
func CreateTestJobRun(t *testing.T, db *gorm.DB, tenantID string, kind models.JobKind) *models.JobRun {
	t.Helper()

	run := &models.JobRun{
		TenantID:   tenantID,
		Kind:       kind,
		Status:     models.JobStatusPending,
		DataSource: "aws",
	}

	if err := db.Create(run).Error; err != nil {
		t.Fatalf("failed to create test job run: %v", err)
	}

	return run
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for a tenant service account
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, tenantID, role string) string {
	t.Helper()

	token, err := jwtService.GenerateToken("test-client", tenantID, role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
