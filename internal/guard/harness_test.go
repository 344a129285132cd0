package guard

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
)

// openTestDB opens a throwaway sqlite database with the admission schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "guard.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

// captureNotifier records every alert it receives.
type captureNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (cn *captureNotifier) Notify(ctx context.Context, alert Alert) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.alerts = append(cn.alerts, alert)
	return nil
}

func (cn *captureNotifier) received() []Alert {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	out := make([]Alert, len(cn.alerts))
	copy(out, cn.alerts)
	return out
}

// erroringStore simulates a counter store outage on every operation.
type erroringStore struct{}

func (erroringStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, ratelimit.ErrStoreUnavailable
}

func (erroringStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return ratelimit.ErrStoreUnavailable
}

func (erroringStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, ratelimit.ErrStoreUnavailable
}

func (erroringStore) CompareAndSwap(ctx context.Context, key string, old, new []byte, ttl time.Duration) (bool, error) {
	return false, ratelimit.ErrStoreUnavailable
}

func (erroringStore) Ping(ctx context.Context) error { return ratelimit.ErrStoreUnavailable }

type harness struct {
	limiter    *Limiter
	lists      *ListStore
	audit      *AuditStore
	detector   *Detector
	dispatcher *Dispatcher
	registry   *ratelimit.ConfigRegistry
	capture    *captureNotifier
	db         *gorm.DB
}

func newHarness(t *testing.T, store ratelimit.CounterStore, detectorCfg DetectorConfig) *harness {
	t.Helper()
	logger := zap.NewNop()
	db := openTestDB(t)

	capture := &captureNotifier{}
	dispatcher := NewDispatcher(logger, 64, capture)
	t.Cleanup(dispatcher.Close)

	lists := NewListStore(db, logger)
	audit := NewAuditStore(db, logger)
	detector := NewDetector(detectorCfg, store, lists, audit, dispatcher, logger)
	registry := ratelimit.NewConfigRegistry(logger)

	return &harness{
		limiter:    NewLimiter(registry, store, lists, audit, detector, logger),
		lists:      lists,
		audit:      audit,
		detector:   detector,
		dispatcher: dispatcher,
		registry:   registry,
		capture:    capture,
		db:         db,
	}
}
