package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operatornetwork/opnet/models"
)

func TestNormalizeTime(t *testing.T) {
	reference := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    interface{}
		expected time.Time
		ok       bool
	}{
		{"native time", reference, reference, true},
		{"time pointer", &reference, reference, true},
		{"nil time pointer", (*time.Time)(nil), time.Time{}, false},
		{"rfc3339 string", "2026-08-01T12:30:00Z", reference, true},
		{"rfc3339 with offset", "2026-08-01T14:30:00+02:00", reference, true},
		{"unix seconds as float", float64(reference.Unix()), reference, true},
		{"unix seconds as int64", reference.Unix(), reference, true},
		{
			"seconds-nanoseconds object",
			map[string]interface{}{"seconds": float64(reference.Unix()), "nanoseconds": float64(0)},
			reference, true,
		},
		{"object without seconds", map[string]interface{}{"nanoseconds": float64(5)}, time.Time{}, false},
		{"garbage string", "not a timestamp", time.Time{}, false},
		{"unsupported type", []int{1, 2}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTime(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.expected), "got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	doc := Document{
		"status":    "claimed",
		"createdAt": float64(1754042400), // unix seconds
		"claimedAt": map[string]interface{}{"seconds": float64(1754046000), "nanoseconds": float64(0)},
		"updatedAt": "2026-08-01T12:30:00Z",
		"notes":     "left alone",
	}

	normalized := NormalizeTimestamps(doc)

	for _, field := range []string{"createdAt", "claimedAt", "updatedAt"} {
		s, isString := normalized[field].(string)
		require.True(t, isString, "%s should be rewritten to a string", field)
		_, err := time.Parse(time.RFC3339Nano, s)
		assert.NoError(t, err, "%s should parse as RFC3339", field)
	}
	assert.Equal(t, "left alone", normalized["notes"])
	assert.Equal(t, "claimed", normalized["status"])
}

func TestNormalizeTimestamps_SkipsAbsentAndNil(t *testing.T) {
	doc := Document{"startedAt": nil, "status": "open"}
	normalized := NormalizeTimestamps(doc)
	assert.Nil(t, normalized["startedAt"])
	_, present := normalized["verifiedAt"]
	assert.False(t, present)
}

func TestEncodeDecode_OperationRoundTrip(t *testing.T) {
	claimed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	op := models.Operation{
		ID:         "op1",
		MachineID:  "machine-1",
		Title:      "Rotate the relay keys",
		Status:     models.StatusClaimed,
		AssigneeID: "alice",
		Reward:     models.Reward{XP: 100, Tokens: 2.5, Currency: "OPN"},
		Difficulty: models.DifficultyAdvanced,
		CreatedAt:  claimed.Add(-time.Hour),
		UpdatedAt:  claimed,
		ClaimedAt:  &claimed,
	}

	doc, err := Encode(op)
	require.NoError(t, err)
	assert.Equal(t, "op1", doc["_id"])
	assert.Equal(t, "claimed", doc["status"])

	var decoded models.Operation
	require.NoError(t, Decode(doc, &decoded))
	assert.Equal(t, op.ID, decoded.ID)
	assert.Equal(t, op.Status, decoded.Status)
	assert.Equal(t, op.Reward, decoded.Reward)
	require.NotNil(t, decoded.ClaimedAt)
	assert.True(t, decoded.ClaimedAt.Equal(claimed))
}

func TestDecode_NormalizedDocumentYieldsTimes(t *testing.T) {
	doc := NormalizeTimestamps(Document{
		"_id":       "op1",
		"machineId": "machine-1",
		"title":     "Audit the beacon logs",
		"status":    "submitted",
		"reward":    map[string]interface{}{"xp": float64(50)},
		"createdAt": float64(1754042400),
		"updatedAt": float64(1754046000),
	})

	var op models.Operation
	require.NoError(t, Decode(doc, &op))
	assert.Equal(t, models.StatusSubmitted, op.Status)
	assert.Equal(t, 50, op.Reward.XP)
	assert.False(t, op.CreatedAt.IsZero())
	assert.True(t, op.UpdatedAt.After(op.CreatedAt))
}
