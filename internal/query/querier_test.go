package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildAnomalyQuery(t *testing.T) {
	statement, args := buildAnomalyQuery(AnomalyQuery{})
	assert.Contains(t, statement, "Estimate, DurationNs")
	assert.NotContains(t, statement, "WHERE")
	assert.Contains(t, statement, "ORDER BY Timestamp DESC LIMIT 100")
	assert.Empty(t, args)

	profile := 2
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)
	statement, args = buildAnomalyQuery(AnomalyQuery{Profile: &profile, Since: since, Until: until, Key: "sshbash", Limit: 5})
	assert.Contains(t, statement, "WHERE ProfileIndex = ? AND Timestamp >= ? AND Timestamp <= ? AND ProfileKey = ?")
	assert.Contains(t, statement, "LIMIT 5")
	assert.Equal(t, []any{uint32(2), since, until, "sshbash"}, args)
}
