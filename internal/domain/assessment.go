package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxUnits bounds project_units_total and every AMI bucket.
const MaxUnits = 1_000_000

// Affordability is the count of affordable units per area-median-income tier.
type Affordability struct {
	AMI30 int `json:"ami30" validate:"gte=0,lte=1000000"`
	AMI50 int `json:"ami50" validate:"gte=0,lte=1000000"`
	AMI60 int `json:"ami60" validate:"gte=0,lte=1000000"`
	AMI70 int `json:"ami70" validate:"gte=0,lte=1000000"`
	AMI80 int `json:"ami80" validate:"gte=0,lte=1000000"`
}

// Total returns the sum of the five AMI buckets. A sum that would overflow
// int saturates at math.MaxInt.
func (a Affordability) Total() int {
	total := 0
	for _, n := range []int{a.AMI30, a.AMI50, a.AMI60, a.AMI70, a.AMI80} {
		if n > 0 && total > math.MaxInt-n {
			return math.MaxInt
		}
		total += n
	}
	return total
}

// AssessmentInput is the payload submitted for evaluation. Once enqueued it
// is serialized into the task and never mutated.
type AssessmentInput struct {
	SessionID         string        `json:"session_id,omitempty"`
	ProjectName       string        `json:"project_name"        validate:"required,min=1"`
	ProjectUnitsTotal int           `json:"project_units_total" validate:"gt=0,lte=1000000"`
	BuildType         *string       `json:"build_type,omitempty"`
	Scatter           *bool         `json:"scatter,omitempty"`
	Address           string        `json:"address"             validate:"required,min=1"`
	City              string        `json:"city"                validate:"required,min=1"`
	State             string        `json:"state"               validate:"required,len=2"`
	Zip               string        `json:"zip"                 validate:"required,min=5,max=10"`
	Affordability     Affordability `json:"affordability"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the input shape. The session id is deliberately not
// checked here: a missing or malformed id is replaced, not rejected.
func (in *AssessmentInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describeValidationError(err))
	}
	if strings.TrimSpace(in.ProjectName) == "" {
		return fmt.Errorf("%w: project_name must not be blank", ErrValidation)
	}
	return nil
}

// ResolveSessionID returns the parsed session id when one was supplied and
// is a valid UUID. Otherwise it returns a freshly generated UUID and
// reports that it did so.
func (in *AssessmentInput) ResolveSessionID() (id uuid.UUID, generated bool) {
	if in.SessionID != "" {
		if parsed, err := uuid.Parse(in.SessionID); err == nil && parsed != uuid.Nil {
			return parsed, false
		}
	}
	return uuid.New(), true
}

// describeValidationError turns validator output into "field: rule" pairs
// using the JSON-facing field names.
func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, jsonFieldName(fe.Namespace())+": "+rule)
	}
	return strings.Join(parts, ", ")
}

var fieldNames = map[string]string{
	"ProjectName":       "project_name",
	"ProjectUnitsTotal": "project_units_total",
	"Address":           "address",
	"City":              "city",
	"State":             "state",
	"Zip":               "zip",
	"Affordability":     "affordability",
	"AMI30":             "ami30",
	"AMI50":             "ami50",
	"AMI60":             "ami60",
	"AMI70":             "ami70",
	"AMI80":             "ami80",
}

// jsonFieldName maps "AssessmentInput.Affordability.AMI30" to "affordability.ami30".
func jsonFieldName(namespace string) string {
	segments := strings.Split(namespace, ".")
	if len(segments) > 1 {
		segments = segments[1:]
	}
	for i, s := range segments {
		if name, ok := fieldNames[s]; ok {
			segments[i] = name
		}
	}
	return strings.Join(segments, ".")
}
