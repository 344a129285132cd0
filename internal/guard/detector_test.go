package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
)

func TestHandleViolationAlertsExactlyOnce(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.ViolationThreshold = 2
	h := newHarness(t, ratelimit.NewMemoryStore(), cfg)
	ctx := context.Background()

	// The streak keeps growing past the threshold; the ban is refreshed each
	// time but only the crossing denial raises an alert.
	for i := 0; i < 4; i++ {
		h.detector.HandleViolation(ctx, "1.2.3.4", "auth", nil)
	}

	banned, _ := h.lists.IsBlacklisted(ctx, "1.2.3.4")
	assert.True(t, banned)

	require.Eventually(t, func() bool {
		return len(h.capture.received()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	escalations := 0
	for _, a := range h.capture.received() {
		if a.Kind == AlertKindEscalation {
			escalations++
		}
	}
	assert.Equal(t, 1, escalations)

	var violations int64
	require.NoError(t, h.db.Model(&ViolationRecord{}).Count(&violations).Error)
	assert.Equal(t, int64(4), violations, "every denial gets an audit row")
}

func TestObserveRequestFiresOnlyAtThreshold(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.DDoSThreshold = 3
	h := newHarness(t, ratelimit.NewMemoryStore(), cfg)
	ctx := context.Background()

	// Requests past the threshold within the same window stay silent.
	for i := 0; i < 6; i++ {
		h.detector.ObserveRequest(ctx, "6.6.6.6", nil)
	}

	var events int64
	require.NoError(t, h.db.Model(&DDoSEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	var bans int64
	require.NoError(t, h.db.Model(&BanRecord{}).Where("identifier = ?", "6.6.6.6").Count(&bans).Error)
	assert.Equal(t, int64(1), bans)
}

func TestDetectorSwallowsStoreOutage(t *testing.T) {
	h := newHarness(t, erroringStore{}, DefaultDetectorConfig())
	ctx := context.Background()

	h.detector.HandleViolation(ctx, "1.2.3.4", "auth", nil)
	h.detector.ObserveRequest(ctx, "1.2.3.4", nil)

	banned, _ := h.lists.IsBlacklisted(ctx, "1.2.3.4")
	assert.False(t, banned)

	// The audit row is still written; only the escalation needs the counter.
	var violations int64
	require.NoError(t, h.db.Model(&ViolationRecord{}).Count(&violations).Error)
	assert.Equal(t, int64(1), violations)
}
