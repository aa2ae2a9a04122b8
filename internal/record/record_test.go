package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()
	d := Defaults{State: "ON", Country: "CA"}
	raws := []Record{
		{FullName: "  Smith, John David ", FirmName: "<b>Smith &amp; Co</b>", Email: "MAILTO:John@Example.COM"},
		{FirstName: "Jane", LastName: "Doe", FullName: "Someone Else", Phone: "tel:555-0100"},
		{FullName: "Dr. Jane A. Doe", BarNumber: "#12345", AdmissionDate: "Called 1998-06-01"},
		{FullName: "Jane Doe", FirmName: "Doe &lt;Partners&gt; LLP"},
		{FirstName: "Ann", Extra: map[string]string{"Languages": " French ", "empty": "  "}},
		{},
	}
	for _, raw := range raws {
		once := Normalize(raw, "Family Law", d)
		twice := Normalize(once, "Family Law", d)
		require.Equal(t, once, twice)
	}
}

func TestNormalizeFields(t *testing.T) {
	t.Parallel()
	got := Normalize(Record{
		FullName: "Smith, John David",
		FirmName: "<b>Smith &amp; Co</b>",
		Email:    "mailto:John@Example.com?subject=hi",
		Extra:    map[string]string{"Languages": "French", "blank": ""},
	}, " family law ", Defaults{State: "ON", Country: "CA"})

	require.Equal(t, "John", got.FirstName)
	require.Equal(t, "Smith", got.LastName)
	require.Equal(t, "Smith, John David", got.FullName)
	require.Equal(t, "Smith & Co", got.FirmName)
	require.Equal(t, "john@example.com", got.Email)
	require.Equal(t, "family law", got.PracticeArea)
	require.Equal(t, "ON", got.State)
	require.Equal(t, "CA", got.Country)
	require.Equal(t, map[string]string{"languages": "French"}, got.Extra)
}

func TestNormalizeKeepsNamesConsistent(t *testing.T) {
	t.Parallel()
	got := Normalize(Record{FirstName: "Jane", LastName: "Doe", FullName: "Someone Else"}, "", Defaults{})
	require.Equal(t, "Jane Doe", got.FullName)

	got = Normalize(Record{FirstName: "Jane", LastName: "Doe"}, "", Defaults{})
	require.Equal(t, "Jane Doe", got.FullName)

	got = Normalize(Record{FirstName: "Ann", LastName: "Lee", FullName: "Joanne Leeds"}, "", Defaults{})
	require.Equal(t, "Ann Lee", got.FullName, "partial words do not count as a match")

	got = Normalize(Record{FirstName: "Mary Ann", LastName: "O'Brien-Lee", FullName: "O'Brien-Lee, Mary Ann Q.C."}, "", Defaults{})
	require.Equal(t, "O'Brien-Lee, Mary Ann Q.C.", got.FullName)

	got = Normalize(Record{FullName: "Smith"}, "", Defaults{})
	require.Equal(t, "", got.FirstName)
	require.Equal(t, "Smith", got.LastName)
}

func TestKey(t *testing.T) {
	t.Parallel()
	require.Equal(t, "id:ab12", Record{BarNumber: " AB12 ", FullName: "x"}.Key())
	require.Equal(t, "name:jane doe|doe llp", Record{FullName: "Jane Doe", FirmName: "Doe LLP"}.Key())
	require.Equal(t, "name:jane doe|", Record{FullName: "Jane Doe"}.Key())
	require.Empty(t, Record{FirmName: "Doe LLP"}.Key())
}

func TestAdmissionYear(t *testing.T) {
	t.Parallel()
	y, ok := Record{AdmissionDate: "Admitted 06/12/1998"}.AdmissionYear()
	require.True(t, ok)
	require.Equal(t, 1998, y)

	_, ok = Record{AdmissionDate: "unknown"}.AdmissionYear()
	require.False(t, ok)
	_, ok = Record{AdmissionDate: "12345"}.AdmissionYear()
	require.False(t, ok)
}

func TestFillMissingNeverOverwrites(t *testing.T) {
	t.Parallel()
	r := Record{FullName: "Jane Doe", Email: "jane@doe.com"}
	changed := r.FillMissing(Record{
		Email:   "other@doe.com",
		Phone:   "555-0100",
		Website: "https://doe.com",
		Extra:   map[string]string{"languages": "French"},
	})
	require.True(t, changed)
	require.Equal(t, "jane@doe.com", r.Email)
	require.Equal(t, "555-0100", r.Phone)
	require.Equal(t, "French", r.Extra["languages"])
	require.ElementsMatch(t, []string{"firm_name", "admission_date"}, r.Missing())

	require.False(t, r.FillMissing(Record{Email: "x@y.z"}))
}

func TestSetGet(t *testing.T) {
	t.Parallel()
	var r Record
	r.Set("Bar_Number", "42")
	r.Set("languages", "Cree")
	r.Set("", "ignored")
	require.Equal(t, "42", r.BarNumber)
	require.Equal(t, "42", r.Get("bar_number"))
	require.Equal(t, "Cree", r.Get("languages"))
	require.False(t, r.Complete())
}
