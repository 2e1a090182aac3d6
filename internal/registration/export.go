package registration

import (
	"bytes"
	"context"
	"strings"
)

const exportFilename = "registration_emails.csv"

// ExportEmails renders the registrants as a Name,Email CSV with every value
// quoted.
func (s *Service) ExportEmails(ctx context.Context, id int64) (string, []byte, error) {
	list, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	users, err := s.users(ctx, list.UserIDs)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("Name,Email\n")
	for _, u := range users {
		buf.WriteString(quote(u.Name) + "," + quote(u.Email) + "\n")
	}
	return exportFilename, buf.Bytes(), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
