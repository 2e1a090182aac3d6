package importer

import "github.com/david/pimm/internal/models"

const (
	FieldAwardNumber       = "award_number"
	FieldTitle             = "title"
	FieldBody              = "body"
	FieldInstitution       = "institution"
	FieldProjectType       = "project_type"
	FieldLeadPI            = "lead_pi"
	FieldCoPIs             = "co_pis"
	FieldPIEmail           = "pi_email"
	FieldAwardAmount       = "award_amount"
	FieldPerformancePeriod = "performance_period"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindHTML
	kindCurrency
	kindAward
	kindDateRange
)

var fieldKinds = map[string]fieldKind{
	FieldAwardNumber:       kindAward,
	FieldTitle:             kindText,
	FieldBody:              kindHTML,
	FieldInstitution:       kindText,
	FieldProjectType:       kindText,
	FieldLeadPI:            kindText,
	FieldCoPIs:             kindText,
	FieldPIEmail:           kindText,
	FieldAwardAmount:       kindCurrency,
	FieldPerformancePeriod: kindDateRange,
}

// textField returns the string field of p backing a text-like import field.
func textField(p *models.Project, field string) *string {
	switch field {
	case FieldTitle:
		return &p.Title
	case FieldBody:
		return &p.Body
	case FieldInstitution:
		return &p.Institution
	case FieldProjectType:
		return &p.ProjectType
	case FieldLeadPI:
		return &p.LeadPI
	case FieldCoPIs:
		return &p.CoPIs
	case FieldPIEmail:
		return &p.PIEmail
	case FieldAwardAmount:
		return &p.AwardAmount
	}
	return nil
}
