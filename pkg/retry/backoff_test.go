package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/sendparcel/pkg/retry"
)

func TestComputeNextRetryAt_ExponentialLaw(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		attempt int
		base    int
		want    time.Duration
	}{
		{1, 60, 60 * time.Second},
		{2, 60, 120 * time.Second},
		{3, 60, 240 * time.Second},
		{4, 60, 480 * time.Second},
		{1, 5, 5 * time.Second},
		{3, 5, 20 * time.Second},
	}

	for _, tc := range cases {
		got := retry.ComputeNextRetryAt(tc.attempt, tc.base, now)
		assert.Equal(t, tc.want, got.Sub(now),
			"attempt %d base %d", tc.attempt, tc.base)
	}
}

func TestComputeNextRetryAt_IsPure(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := retry.ComputeNextRetryAt(3, 60, now)
	b := retry.ComputeNextRetryAt(3, 60, now)
	assert.Equal(t, a, b)
}

func TestComputeNextRetryAt_ClampsAttempt(t *testing.T) {
	now := time.Now()
	got := retry.ComputeNextRetryAt(0, 60, now)
	assert.Equal(t, 60*time.Second, got.Sub(now))
}
