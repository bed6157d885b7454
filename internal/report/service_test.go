package report

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/pricing"
	"backend/internal/tenant"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console", "stdout"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func setupReportTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:report_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tenant.Tenant{}, &ledger.UsageLedger{}))
	return db
}

func seedReportTenant(t *testing.T, db *gorm.DB, id, status string) {
	t.Helper()
	require.NoError(t, db.Create(&tenant.Tenant{
		ID:          id,
		DisplayName: "Tenant " + id,
		Email:       id + "@example.com",
		Role:        "user",
		Status:      status,
	}).Error)
}

func applyUsage(t *testing.T, db *gorm.DB, tenantID string, inTok, outTok int64) {
	t.Helper()
	rates := pricing.NewTable(nil, pricing.Rate{InputPer1K: 0.01, OutputPer1K: 0.03})
	svc := ledger.NewService(db, rates, tenant.NewGormDirectory(db))
	_, err := svc.ApplyDelta(context.Background(), tenantID, ledger.Delta{
		InputTokens:  inTok,
		OutputTokens: outTok,
		Model:        "m1",
	})
	require.NoError(t, err)
}

func TestListAllLedgers_IncludesTenantsWithoutUsage(t *testing.T) {
	db := setupReportTestDB(t)
	seedReportTenant(t, db, "tenant-1", tenant.StatusActive)
	seedReportTenant(t, db, "tenant-2", tenant.StatusActive)
	applyUsage(t, db, "tenant-1", 1000, 500)

	svc := NewService(db, tenant.NewGormDirectory(db), nil)
	rows, err := svc.ListAllLedgers(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byTenant := make(map[string]TenantUsageRow, len(rows))
	for _, row := range rows {
		byTenant[row.TenantID] = row
	}
	assert.Equal(t, int64(1500), byTenant["tenant-1"].Ledger.TotalTokens)
	// 无用量的租户输出零值台账而不是缺行
	assert.Zero(t, byTenant["tenant-2"].Ledger.TotalTokens)
	assert.Equal(t, "tenant-2", byTenant["tenant-2"].Ledger.TenantID)
	assert.Equal(t, "Tenant tenant-2", byTenant["tenant-2"].Metadata.DisplayName)
}

func TestListAllLedgers_ExcludesStatuses(t *testing.T) {
	db := setupReportTestDB(t)
	seedReportTenant(t, db, "tenant-1", tenant.StatusActive)
	seedReportTenant(t, db, "tenant-2", tenant.StatusSuspended)
	seedReportTenant(t, db, "tenant-3", tenant.StatusDeleted)

	svc := NewService(db, tenant.NewGormDirectory(db), nil)
	rows, err := svc.ListAllLedgers(context.Background(), []string{tenant.StatusSuspended, tenant.StatusDeleted})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tenant-1", rows[0].TenantID)
}

func TestSummarize_TotalsAcrossTenants(t *testing.T) {
	db := setupReportTestDB(t)
	seedReportTenant(t, db, "tenant-1", tenant.StatusActive)
	seedReportTenant(t, db, "tenant-2", tenant.StatusActive)
	seedReportTenant(t, db, "tenant-3", tenant.StatusDeleted)
	applyUsage(t, db, "tenant-1", 1000, 500)
	applyUsage(t, db, "tenant-2", 200, 100)

	svc := NewService(db, tenant.NewGormDirectory(db), nil)
	sum, err := svc.Summarize(context.Background())
	require.NoError(t, err)

	// 已删除租户不计入汇总
	assert.Equal(t, 2, sum.TenantCount)
	assert.Equal(t, int64(1200), sum.TotalInputTokens)
	assert.Equal(t, int64(600), sum.TotalOutputTokens)
	assert.Equal(t, int64(1800), sum.TotalTokens)
	assert.False(t, sum.GeneratedAt.IsZero())
}

func TestSummarize_EmptyDirectory(t *testing.T) {
	db := setupReportTestDB(t)

	svc := NewService(db, tenant.NewGormDirectory(db), nil)
	sum, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.TenantCount)
	assert.Zero(t, sum.TotalTokens)
	assert.Zero(t, sum.TotalEstimatedCost)
}
