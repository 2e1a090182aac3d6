package importer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	tests := map[string]string{
		"$1,234.50":  "1234.50",
		"1234.50":    "1234.50",
		" USD 900 ":  "900",
		"":           "",
		"$0.00":      "0.00",
		"€12.345,00": "12.34500",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCurrency(in), "input %q", in)
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "\u00e9cole du monde", NormalizeText("  e\u0301cole du monde \t"))
	assert.Equal(t, "", NormalizeText(" \n "))
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", NormalizeText("\nFirst paragraph.\n\nSecond paragraph.\n"))
	once := NormalizeText("  Ocean   Sensors ")
	assert.Equal(t, "Ocean   Sensors", once)
	assert.Equal(t, once, NormalizeText(once))
}

func TestSanitizeBody(t *testing.T) {
	out := SanitizeBody(`<p onclick="x()">Study of <b>sensors</b>.</p><script>alert(1)</script>`)
	assert.Equal(t, "<p>Study of <b>sensors</b>.</p>", out)
	assert.Equal(t, out, SanitizeBody(out))
}

func TestSanitizeBody_FixedPoint(t *testing.T) {
	for _, in := range []string{
		"x <script>y</script> z",
		"a <foo> b",
		" <script>lead</script> trailing <style>p{}</style> ",
		"R&D <b>bold</b>",
		"Line one.\n\nLine two.",
		"plain abstract",
	} {
		once := SanitizeBody(in)
		assert.Equal(t, once, SanitizeBody(once), "input %q", in)
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "Study of sensors.", Excerpt("<p>Study of <b>sensors</b>.</p>", 50))
	assert.Equal(t, "abcdefg...", Excerpt("abcdefghijklmnop", 10))
}

func TestParseDateForms(t *testing.T) {
	want := DateRange{
		Start: time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, 8, 31, 0, 0, 0, 0, time.UTC),
	}
	nsf := DefaultMappings().Formats[0].DateLayouts
	site := DefaultMappings().Formats[1].DateLayouts

	pair, err := ParseDatePair("9/1/2020", "8/31/2021", nsf)
	require.NoError(t, err)
	assert.Equal(t, want, pair)

	padded, err := ParseDatePair("09/01/2020", "2021-08-31", nsf)
	require.NoError(t, err)
	assert.Equal(t, want, padded)

	for _, raw := range []string{
		"September 2020 – August 2021",
		"September 2020 — August 2021",
		"Sep 2020 - Aug 2021",
		"September 2020 to August 2021",
	} {
		r, err := ParseDateRange(raw, site)
		require.NoError(t, err, raw)
		assert.Equal(t, want, r, raw)
	}
}

func TestParseDateErrors(t *testing.T) {
	layouts := DefaultMappings().Formats[0].DateLayouts

	_, err := ParseDatePair("9/1/2020", "", layouts)
	var derr *DateParseError
	assert.ErrorAs(t, err, &derr)

	_, err = ParseDatePair("9/1/2021", "8/31/2020", layouts)
	assert.ErrorAs(t, err, &derr)

	_, err = ParseDateRange("September 2020", DefaultMappings().Formats[1].DateLayouts)
	assert.ErrorAs(t, err, &derr)

	_, err = ParseDateRange("Autumn 2020 – Summer 2021", DefaultMappings().Formats[1].DateLayouts)
	assert.ErrorAs(t, err, &derr)
}

func TestMappings_Detect(t *testing.T) {
	set := DefaultMappings()

	m := set.Detect([]Row{{"AwardNumber": "AA-1"}})
	assert.Equal(t, "nsf_award_export", m.Name)

	m = set.Detect([]Row{{"Award Number": "AA-1"}, {"AwardNumber": "AA-2"}})
	assert.Equal(t, "site_export", m.Name, "only the first row decides")

	m = set.Detect(nil)
	assert.Equal(t, "site_export", m.Name)

	for i := 0; i < 5; i++ {
		assert.Equal(t, "nsf_award_export", set.Detect([]Row{{"AwardNumber": "", "Title": "x"}}).Name)
	}
}

func TestLoadMappings_File(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "mappings.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
formats:
  - name: custom
    date_layouts: ["2006-01-02"]
    columns:
      - { source: Award, field: award_number }
      - { source: Name, field: title }
    people:
      pi: Lead
`), 0o600))

	set, err := LoadMappings(good)
	require.NoError(t, err)
	m, ok := set.Lookup("custom")
	require.True(t, ok)
	assert.Equal(t, "Award", m.AwardColumn())

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("formats:\n  - name: broken\n    date_layouts: [\"2006\"]\n"), 0o600))
	_, err = LoadMappings(bad)
	assert.Error(t, err)

	_, err = LoadMappings(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestExtractPeople(t *testing.T) {
	nsf := DefaultMappings().Formats[0]
	row := Row{
		"PrincipalInvestigator": "Smith, John A.",
		"Co-PIName(s)":          "Jane Doe, Richard  Roe, John Smith",
		"PIEmailAddress":        "jsmith@univ.edu jdoe@univ.edu",
	}

	people := ExtractPeople(row, &nsf)
	require.Len(t, people, 3)
	assert.Equal(t, PersonIdentity{Name: "John Smith", Email: "jsmith@univ.edu", Role: RolePI}, people[0])
	assert.Equal(t, PersonIdentity{Name: "Jane Doe", Email: "jdoe@univ.edu", Role: RoleCoPI}, people[1])
	assert.Equal(t, PersonIdentity{Name: "Richard Roe", Role: RoleCoPI}, people[2])

	site := DefaultMappings().Formats[1]
	people = ExtractPeople(Row{"field_project_lead_pi": "Doe, Jane", "Co-PIName(s)": "Ignored Person"}, &site)
	require.Len(t, people, 1)
	assert.Equal(t, "Jane Doe", people[0].Name)

	assert.Empty(t, ExtractPeople(Row{"PrincipalInvestigator": " "}, &nsf))
}
