package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerMeanStdDev(t *testing.T) {
	var timer Timer
	timer.Add(10 * time.Millisecond)
	timer.Add(20 * time.Millisecond)
	timer.Add(30 * time.Millisecond)

	assert.Equal(t, 20*time.Millisecond, timer.Mean)
	assert.InDelta(t, 8164965.8, float64(timer.StdDev), 10)
	assert.Len(t, timer.Samples, 3)
}

func TestTimerTrackPropagatesError(t *testing.T) {
	var timer Timer
	wantErr := errors.New("boom")
	err := timer.Track(func() error {
		time.Sleep(time.Millisecond)
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Len(t, timer.Samples, 1)
}

func TestTimerStringEmpty(t *testing.T) {
	var timer Timer
	assert.Equal(t, "no samples", timer.String())
}

func TestReportSummarySkipsEmptyTimers(t *testing.T) {
	var report Report
	report.Encryption.Add(5 * time.Millisecond)
	report.Total.Add(50 * time.Millisecond)

	summary := report.Summary()
	assert.Contains(t, summary, "encryption")
	assert.Contains(t, summary, "total")
	assert.NotContains(t, summary, "keygen")
	assert.NotContains(t, summary, "evaluation")
	assert.NotContains(t, summary, "decryption")
}
