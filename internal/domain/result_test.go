package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessmentResult_PreservesUnknownFields(t *testing.T) {
	t.Parallel()

	payload := `{
		"session_id": "abc",
		"project_name": "Elm St",
		"eligible": true,
		"total_affordable": 3,
		"total_units": 10,
		"model_version": "r-2024.1",
		"flags": ["fast-track"],
		"totals": {"units": 10, "affordable": 3, "market_rate": 7},
		"location": {"lat": 40.7, "lng": -73.9, "gisjoin": "G360", "tract": "001"}
	}`

	var res AssessmentResult
	require.NoError(t, json.Unmarshal([]byte(payload), &res))

	assert.True(t, res.Eligible)
	assert.Equal(t, 10, res.TotalUnits)
	assert.JSONEq(t, `"r-2024.1"`, string(res.Extra["model_version"]))
	require.NotNil(t, res.Totals)
	assert.JSONEq(t, `7`, string(res.Totals.Extra["market_rate"]))
	require.NotNil(t, res.Location)
	assert.Equal(t, "G360", res.Location.GISJoin)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))
}

func TestAssessmentResult_PartialPayload(t *testing.T) {
	t.Parallel()

	payload := `{"session_id":"abc","project_name":"p","eligible":false,"total_affordable":0,"total_units":4}`

	var res AssessmentResult
	require.NoError(t, json.Unmarshal([]byte(payload), &res))
	assert.Nil(t, res.Extra)
	assert.Nil(t, res.Decision)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))
}

func TestAssessmentResult_DeclaredFieldWinsOverExtra(t *testing.T) {
	t.Parallel()

	res := AssessmentResult{
		ProjectName: "declared",
		Extra:       map[string]json.RawMessage{"project_name": json.RawMessage(`"extra"`)},
	}
	out, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "declared", decoded["project_name"])
}

func TestNewToolResult_DevelopableFlag(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	assert.Equal(t, DevelopableYes, NewToolResult(id, AssessmentResult{Eligible: true}).Developable)
	assert.Equal(t, DevelopableNo, NewToolResult(id, AssessmentResult{Eligible: false}).Developable)
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSession(uuid.New(), now, DefaultSessionTTL)
	require.NoError(t, err)
	assert.True(t, s.IsActive)
	assert.Equal(t, now.Add(30*24*time.Hour), s.ExpiresBy)

	_, err = NewSession(uuid.New(), now, 0)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = NewSession(uuid.Nil, now, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidSession)
}
