package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"backend/internal/pricing"
	"backend/internal/tenant"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tenant.Tenant{}, &UsageLedger{}))
	return db
}

func newLedgerTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	rates := pricing.NewTable(map[string]pricing.Rate{
		"m1": {InputPer1K: 0.01, OutputPer1K: 0.03},
	}, pricing.Rate{InputPer1K: 0.01, OutputPer1K: 0.03})
	return NewService(db, rates, tenant.NewGormDirectory(db))
}

func seedTenant(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Create(&tenant.Tenant{
		ID:          id,
		DisplayName: "Tenant " + id,
		Email:       id + "@example.com",
		Role:        "user",
		Status:      tenant.StatusActive,
	}).Error)
}

func TestApplyDelta_FirstWriteCreatesLedger(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	snap, err := svc.ApplyDelta(context.Background(), "tenant-1", Delta{
		InputTokens:   100,
		OutputTokens:  50,
		PdfsProcessed: 1,
		Model:         "m1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), snap.InputTokens)
	assert.Equal(t, int64(50), snap.OutputTokens)
	assert.Equal(t, int64(150), snap.TotalTokens)
	assert.Equal(t, int64(1), snap.PdfsProcessed)
	assert.InDelta(t, 100.0/1000*0.01+50.0/1000*0.03, snap.EstimatedCost, 1e-12)

	usage := snap.Breakdown()["m1"]
	assert.Equal(t, int64(1), usage.Count)
	assert.Equal(t, int64(150), usage.Tokens)
}

func TestApplyDelta_AccumulatesAcrossCalls(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	_, err := svc.ApplyDelta(context.Background(), "tenant-1", Delta{InputTokens: 100, OutputTokens: 50, Model: "m1"})
	require.NoError(t, err)
	snap, err := svc.ApplyDelta(context.Background(), "tenant-1", Delta{InputTokens: 150, OutputTokens: 50, Model: "m1"})
	require.NoError(t, err)

	assert.Equal(t, int64(250), snap.InputTokens)
	assert.Equal(t, int64(100), snap.OutputTokens)
	assert.Equal(t, int64(350), snap.TotalTokens)

	usage := snap.Breakdown()["m1"]
	assert.Equal(t, int64(2), usage.Count)
	assert.Equal(t, int64(350), usage.Tokens)

	// 快照与持久化状态一致
	stored, err := svc.GetLedger(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, snap.TotalTokens, stored.TotalTokens)
	assert.Equal(t, snap.EstimatedCost, stored.EstimatedCost)
}

func TestApplyDelta_ClampsNegativeValues(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	snap, err := svc.ApplyDelta(context.Background(), "tenant-1", Delta{
		InputTokens:  -500,
		OutputTokens: 30,
		Model:        "m1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.InputTokens)
	assert.Equal(t, int64(30), snap.OutputTokens)
	assert.Equal(t, int64(30), snap.TotalTokens)
}

func TestApplyDelta_UnknownTenant(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)

	_, err := svc.ApplyDelta(context.Background(), "ghost", Delta{InputTokens: 1, Model: "m1"})
	assert.ErrorIs(t, err, ErrLedgerNotFound)
}

func TestApplyDelta_ConcurrentWritersLoseNothing(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	// 预先创建台账行，并发阶段只走加锁更新路径
	_, err := svc.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)

	// 单连接让并发事务在 sqlite 上串行执行
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyDelta(context.Background(), "tenant-1", Delta{
				InputTokens:  10,
				OutputTokens: 5,
				Model:        "m1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := svc.GetLedger(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*10), snap.InputTokens)
	assert.Equal(t, int64(writers*5), snap.OutputTokens)
	assert.Equal(t, int64(writers*15), snap.TotalTokens)
	assert.Equal(t, int64(writers), snap.Breakdown()["m1"].Count)
}

func TestGetLedger_ZeroSnapshotForTenantWithoutUsage(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	snap, err := svc.GetLedger(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", snap.TenantID)
	assert.Zero(t, snap.TotalTokens)
	assert.Zero(t, snap.EstimatedCost)
	assert.Empty(t, snap.Breakdown())
}

func TestGetLedger_UnknownTenant(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)

	_, err := svc.GetLedger(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrLedgerNotFound)
}

func TestGetLedger_ReadsDoNotMutate(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	_, err := svc.ApplyDelta(context.Background(), "tenant-1", Delta{InputTokens: 42, Model: "m1"})
	require.NoError(t, err)

	first, err := svc.GetLedger(context.Background(), "tenant-1")
	require.NoError(t, err)
	second, err := svc.GetLedger(context.Background(), "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, first.TotalTokens, second.TotalTokens)
	assert.Equal(t, first.EstimatedCost, second.EstimatedCost)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestProvision_Idempotent(t *testing.T) {
	db := setupLedgerTestDB(t)
	svc := newLedgerTestService(t, db)
	seedTenant(t, db, "tenant-1")

	first, err := svc.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)
	second, err := svc.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&UsageLedger{}).Where("tenant_id = ?", "tenant-1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
