package quota

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"backend/internal/logger"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testLimit = int64(200 << 20) // 200MB

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console", "stdout"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func setupQuotaTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:quota_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&StorageQuota{}, &HistoryEntry{}))
	return db
}

func newQuotaTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(setupQuotaTestDB(t), testLimit)
}

func TestCheckAndReserve_AllowsWithinLimit(t *testing.T) {
	svc := newQuotaTestService(t)

	decision, err := svc.CheckAndReserve(context.Background(), "tenant-1", 50<<20)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(50<<20), decision.UsedBytes)
	assert.Equal(t, testLimit, decision.LimitBytes)
	assert.Equal(t, testLimit-(50<<20), decision.RemainingBytes)
}

func TestCheckAndReserve_DeniesOverLimitWithoutMutation(t *testing.T) {
	svc := newQuotaTestService(t)

	// 先占用 190MB
	decision, err := svc.CheckAndReserve(context.Background(), "tenant-1", 190<<20)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// 再请求 20MB，超出 200MB 上限 10MB
	decision, err = svc.CheckAndReserve(context.Background(), "tenant-1", 20<<20)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(10<<20), decision.ExceededBytes)
	assert.Contains(t, decision.Reason, "10.0 MB")

	// 拒绝不产生任何占用变化
	state, err := svc.GetState(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(190<<20), state.Quota.UsedBytes)
}

func TestCheckAndReserve_RetryAfterDeleteSucceeds(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	decision, err := svc.CheckAndReserve(ctx, "tenant-1", 190<<20)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = svc.CheckAndReserve(ctx, "tenant-1", 20<<20)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// 删除 30MB 后重试同一笔上传
	require.NoError(t, svc.Commit(ctx, "tenant-1", -(30 << 20), ActionDelete, "old.pdf"))

	decision, err = svc.CheckAndReserve(ctx, "tenant-1", 20<<20)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(180<<20), decision.UsedBytes)
}

func TestCheckAndReserve_ConcurrentReservationsRespectLimit(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	// 预先建行，避免并发路径同时走首次建行
	decision, err := svc.CheckAndReserve(ctx, "tenant-1", 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.NoError(t, svc.Release(ctx, "tenant-1", 1))

	sqlDB, err := svc.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// 任意两笔预留之和都超过上限，最多只能放行一笔
	const writers = 8
	delta := testLimit/2 + 1

	type result struct {
		decision *Decision
		err      error
	}
	var wg sync.WaitGroup
	results := make(chan result, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.CheckAndReserve(ctx, "tenant-1", delta)
			results <- result{decision: d, err: err}
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for r := range results {
		require.NoError(t, r.err)
		if r.decision.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)

	state, err := svc.GetState(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, delta, state.Quota.UsedBytes)
}

func TestCheckAndReserve_RejectsNonPositiveDelta(t *testing.T) {
	svc := newQuotaTestService(t)

	_, err := svc.CheckAndReserve(context.Background(), "tenant-1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuotaOperation)
	_, err = svc.CheckAndReserve(context.Background(), "tenant-1", -5)
	assert.ErrorIs(t, err, ErrInvalidQuotaOperation)
}

func TestCommit_PositiveDeltaOnlyAppendsHistory(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	decision, err := svc.CheckAndReserve(ctx, "tenant-1", 10<<20)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	require.NoError(t, svc.Commit(ctx, "tenant-1", 10<<20, ActionUpload, "paper.pdf"))

	state, err := svc.GetState(ctx, "tenant-1")
	require.NoError(t, err)
	// 字节在预留阶段已计入，落账不重复累加
	assert.Equal(t, int64(10<<20), state.Quota.UsedBytes)
	require.Len(t, state.History, 1)
	assert.Equal(t, ActionUpload, state.History[0].Action)
	assert.Equal(t, int64(10<<20), state.History[0].DeltaBytes)
	assert.Equal(t, "paper.pdf", state.History[0].ArtifactRef)
}

func TestCommit_NegativeDeltaFloorsAtZero(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	decision, err := svc.CheckAndReserve(ctx, "tenant-1", 5<<20)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// 扣减超过占用量，结果钳制为 0 而不是负数
	require.NoError(t, svc.Commit(ctx, "tenant-1", -(8 << 20), ActionDelete, "paper.pdf"))

	state, err := svc.GetState(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Zero(t, state.Quota.UsedBytes)
}

func TestCommit_RejectsUnknownAction(t *testing.T) {
	svc := newQuotaTestService(t)

	err := svc.Commit(context.Background(), "tenant-1", 10<<20, Action("bogus"), "paper.pdf")
	assert.ErrorIs(t, err, ErrInvalidQuotaOperation)

	// 非法操作不写流水
	var count int64
	require.NoError(t, svc.DB.Model(&HistoryEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCommit_RejectsZeroDelta(t *testing.T) {
	svc := newQuotaTestService(t)

	err := svc.Commit(context.Background(), "tenant-1", 0, ActionUpload, "")
	assert.ErrorIs(t, err, ErrInvalidQuotaOperation)
}

func TestRelease_BacksOutReservation(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	decision, err := svc.CheckAndReserve(ctx, "tenant-1", 50<<20)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	require.NoError(t, svc.Release(ctx, "tenant-1", 50<<20))

	state, err := svc.GetState(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Zero(t, state.Quota.UsedBytes)
	// 回滚不留流水
	assert.Empty(t, state.History)
}

func TestResetAll_ZeroesUsageWithSingleHistoryEntry(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := svc.CheckAndReserve(ctx, "tenant-1", 10<<20)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.NoError(t, svc.Commit(ctx, "tenant-1", 10<<20, ActionUpload, fmt.Sprintf("doc-%d.pdf", i)))
	}

	require.NoError(t, svc.ResetAll(ctx, "tenant-1"))

	state, err := svc.GetState(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Zero(t, state.Quota.UsedBytes)

	var resets []HistoryEntry
	for _, entry := range state.History {
		if entry.Action == ActionDeleteAll {
			resets = append(resets, entry)
		}
	}
	require.Len(t, resets, 1)
	assert.Equal(t, int64(-(30 << 20)), resets[0].DeltaBytes)
}

func TestGetState_DefaultsForUnknownTenant(t *testing.T) {
	svc := newQuotaTestService(t)

	state, err := svc.GetState(context.Background(), "fresh-tenant")
	require.NoError(t, err)
	assert.Equal(t, testLimit, state.Quota.LimitBytes)
	assert.Zero(t, state.Quota.UsedBytes)
	assert.Empty(t, state.History)
}

func TestSetLimit_AdjustsCeiling(t *testing.T) {
	svc := newQuotaTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetLimit(ctx, "tenant-1", 500<<20))

	decision, err := svc.CheckAndReserve(ctx, "tenant-1", 300<<20)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(500<<20), decision.LimitBytes)
}

func TestSetLimit_RejectsNonPositive(t *testing.T) {
	svc := newQuotaTestService(t)

	err := svc.SetLimit(context.Background(), "tenant-1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuotaOperation)
}
