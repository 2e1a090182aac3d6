package importer

import (
	"strings"

	"github.com/david/pimm/internal/names"
)

type Role string

const (
	RolePI   Role = "PI"
	RoleCoPI Role = "Co-PI"
)

// PersonIdentity is a principal investigator named by an import row.
type PersonIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// ExtractPeople returns the PI first, then co-PIs in column order. Emails
// are whitespace-separated and paired by position: the first belongs to the
// PI, the rest to the co-PIs.
func ExtractPeople(row Row, m *Mapping) []PersonIdentity {
	var emails []string
	if m.People.Emails != "" {
		emails = strings.Fields(row[m.People.Emails])
	}
	emailAt := func(i int) string {
		if i < len(emails) {
			return emails[i]
		}
		return ""
	}

	var people []PersonIdentity
	pi := ""
	if m.People.PI != "" {
		pi = names.Normalize(row[m.People.PI])
		if pi != "" {
			people = append(people, PersonIdentity{Name: pi, Email: emailAt(0), Role: RolePI})
		}
	}

	if m.People.CoPIs != "" {
		seen := map[string]struct{}{pi: {}}
		for i, raw := range names.SplitList(row[m.People.CoPIs]) {
			name := names.Normalize(raw)
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			people = append(people, PersonIdentity{Name: name, Email: emailAt(i + 1), Role: RoleCoPI})
		}
	}
	return people
}
