package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Developable flag values stored alongside each result.
const (
	DevelopableYes = "YES"
	DevelopableNo  = "NO"
)

// Location is the geocoded position of the project. It is produced by an
// external lookup and only carried through here.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	GISJoin string  `json:"gisjoin"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Totals summarises unit counts.
type Totals struct {
	Units      int     `json:"units"`
	Affordable float64 `json:"affordable"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Decision is the eligibility verdict and a human-readable reason.
type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`

	Extra map[string]json.RawMessage `json:"-"`
}

// AssessmentResult is the result payload of one evaluation. The schema is
// open: fields not declared here are kept in Extra and written back out
// unchanged, since stored payloads predate and postdate this type.
type AssessmentResult struct {
	SessionID       string     `json:"session_id"`
	ProjectName     string     `json:"project_name"`
	Eligible        bool       `json:"eligible"`
	TotalAffordable int        `json:"total_affordable"`
	TotalUnits      int        `json:"total_units"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	Totals          *Totals    `json:"totals,omitempty"`
	Decision        *Decision  `json:"decision,omitempty"`
	Location        *Location  `json:"location,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ToolResult is the persisted result row: at most one per session.
type ToolResult struct {
	SessionID   uuid.UUID        `json:"session_id"`
	Results     AssessmentResult `json:"results"`
	Developable string           `json:"developable"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

// NewToolResult wraps an evaluation result, deriving the developable flag.
func NewToolResult(sessionID uuid.UUID, res AssessmentResult) *ToolResult {
	return &ToolResult{
		SessionID:   sessionID,
		Results:     res,
		Developable: DevelopableFlag(res.Eligible),
	}
}

// DevelopableFlag maps eligibility to the stored YES/NO flag.
func DevelopableFlag(eligible bool) string {
	if eligible {
		return DevelopableYes
	}
	return DevelopableNo
}

type assessmentResultAlias AssessmentResult

// MarshalJSON writes the declared fields followed by any preserved extras.
func (r AssessmentResult) MarshalJSON() ([]byte, error) {
	return marshalOpen(assessmentResultAlias(r), r.Extra)
}

// UnmarshalJSON reads the declared fields and keeps the rest in Extra.
func (r *AssessmentResult) UnmarshalJSON(data []byte) error {
	var alias assessmentResultAlias
	extra, err := unmarshalOpen(data, &alias, assessmentResultKeys)
	if err != nil {
		return err
	}
	*r = AssessmentResult(alias)
	r.Extra = extra
	return nil
}

type totalsAlias Totals

func (t Totals) MarshalJSON() ([]byte, error) { return marshalOpen(totalsAlias(t), t.Extra) }

func (t *Totals) UnmarshalJSON(data []byte) error {
	var alias totalsAlias
	extra, err := unmarshalOpen(data, &alias, totalsKeys)
	if err != nil {
		return err
	}
	*t = Totals(alias)
	t.Extra = extra
	return nil
}

type decisionAlias Decision

func (d Decision) MarshalJSON() ([]byte, error) { return marshalOpen(decisionAlias(d), d.Extra) }

func (d *Decision) UnmarshalJSON(data []byte) error {
	var alias decisionAlias
	extra, err := unmarshalOpen(data, &alias, decisionKeys)
	if err != nil {
		return err
	}
	*d = Decision(alias)
	d.Extra = extra
	return nil
}

type locationAlias Location

func (l Location) MarshalJSON() ([]byte, error) { return marshalOpen(locationAlias(l), l.Extra) }

func (l *Location) UnmarshalJSON(data []byte) error {
	var alias locationAlias
	extra, err := unmarshalOpen(data, &alias, locationKeys)
	if err != nil {
		return err
	}
	*l = Location(alias)
	l.Extra = extra
	return nil
}

// marshalOpen encodes v and merges extra keys that v does not declare.
func marshalOpen(v any, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(extra)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, declared := merged[k]; !declared {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// unmarshalOpen decodes data into v and returns the keys not in declared.
func unmarshalOpen(data []byte, v any, declared []string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range declared {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

var (
	assessmentResultKeys = []string{
		"session_id", "project_name", "eligible", "total_affordable",
		"total_units", "processed_at", "totals", "decision", "location",
	}
	totalsKeys   = []string{"units", "affordable"}
	decisionKeys = []string{"eligible", "reason"}
	locationKeys = []string{"lat", "lng", "gisjoin"}
)
