package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHorizonLabel(t *testing.T) {
	assert.Equal(t, HorizonOneDay, HorizonLabel(0))
	assert.Equal(t, HorizonOneDay, HorizonLabel(1))
	assert.Equal(t, HorizonSevenDay, HorizonLabel(2))
	assert.Equal(t, HorizonSevenDay, HorizonLabel(7))
	assert.Equal(t, HorizonThirtyDay, HorizonLabel(8))
	assert.Equal(t, HorizonThirtyDay, HorizonLabel(30))
	assert.Equal(t, "45-day", HorizonLabel(45))
}

func TestSeverityRank(t *testing.T) {
	assert.Equal(t, 1, SeverityMedium.Rank())
	assert.Equal(t, 2, SeverityHigh.Rank())
	assert.Equal(t, 3, SeverityCritical.Rank())
	assert.Equal(t, 0, Severity("whatever").Rank())
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
}

func TestDayTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	d := Day(time.Date(2024, 3, 15, 23, 45, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d)
}
