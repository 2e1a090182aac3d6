package invitation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/david/pimm/internal/models"
)

var ErrInvalidFilter = errors.New("invalid project filter")

const (
	FieldTitle             = "title"
	FieldInstitution       = "institution"
	FieldLeadPI            = "lead_pi"
	FieldPerformancePeriod = "performance_period"

	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpBefore     = "before"
	OpAfter      = "after"
	OpBetween    = "between"
)

const filterDateLayout = "2006-01-02"

// Filter narrows the projects offered for an invitee list. Text fields are
// compared case-insensitively; dates are YYYY-MM-DD.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Value2   string `json:"value2,omitempty"`
}

func (f Filter) Validate() error {
	switch f.Field {
	case FieldTitle, FieldInstitution, FieldLeadPI:
		switch f.Operator {
		case OpContains, OpStartsWith, OpEndsWith:
		default:
			return fmt.Errorf("%w: operator %q does not apply to %s", ErrInvalidFilter, f.Operator, f.Field)
		}
	case FieldPerformancePeriod:
		switch f.Operator {
		case OpBefore, OpAfter:
		case OpBetween:
			if _, err := time.Parse(filterDateLayout, f.Value2); err != nil {
				return fmt.Errorf("%w: value2 %q is not a date", ErrInvalidFilter, f.Value2)
			}
		default:
			return fmt.Errorf("%w: operator %q does not apply to %s", ErrInvalidFilter, f.Operator, f.Field)
		}
		if _, err := time.Parse(filterDateLayout, f.Value); err != nil {
			return fmt.Errorf("%w: value %q is not a date", ErrInvalidFilter, f.Value)
		}
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, f.Field)
	}
	return nil
}

// Match reports whether p passes the filter. The filter must be valid.
func (f Filter) Match(p *models.Project) bool {
	if f.Field == FieldPerformancePeriod {
		return f.matchPeriod(p)
	}

	var value string
	switch f.Field {
	case FieldTitle:
		value = p.Title
	case FieldInstitution:
		value = p.Institution
	case FieldLeadPI:
		value = p.LeadPI
	}
	value = strings.ToLower(value)
	needle := strings.ToLower(strings.TrimSpace(f.Value))

	switch f.Operator {
	case OpStartsWith:
		return strings.HasPrefix(value, needle)
	case OpEndsWith:
		return strings.HasSuffix(value, needle)
	default:
		return strings.Contains(value, needle)
	}
}

// matchPeriod: before means the period ended before the date, after means
// it started after it, between means it lies entirely inside the range.
func (f Filter) matchPeriod(p *models.Project) bool {
	from, _ := time.Parse(filterDateLayout, f.Value)
	switch f.Operator {
	case OpBefore:
		return p.PerformanceEnd != nil && p.PerformanceEnd.Before(from)
	case OpAfter:
		return p.PerformanceStart != nil && p.PerformanceStart.After(from)
	case OpBetween:
		to, _ := time.Parse(filterDateLayout, f.Value2)
		if p.PerformanceStart == nil || p.PerformanceEnd == nil {
			return false
		}
		return !p.PerformanceStart.Before(from) && !p.PerformanceEnd.After(to)
	}
	return false
}
