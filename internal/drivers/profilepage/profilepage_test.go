package profilepage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const profileHTML = `<html><body>
<h1>Jane Doe</h1>
<dl>
  <dt>Firm:</dt><dd>Doe &amp; Partners LLP</dd>
  <dt>Year of Call</dt><dd>1998</dd>
</dl>
<table>
  <tr><th>Telephone</th><td>416-555-0100</td></tr>
  <tr><th>Languages</th><td>French, Cree</td></tr>
  <tr><td>a</td><td>b</td><td>c</td></tr>
</table>
<span data-label="Status">Practising</span>
<a href="mailto:Jane@DoeLaw.ca">Email Jane</a>
<a href="tel:999">Call</a>
<a href="https://directory.example/search">Back to search</a>
<a href="https://www.doelaw.ca">www.doelaw.ca</a>
</body></html>`

func TestParse(t *testing.T) {
	t.Parallel()
	rec, err := Parse([]byte(profileHTML), "https://directory.example/profile/1",
		map[string]string{"Languages": "languages"})
	require.NoError(t, err)

	require.Equal(t, "Doe & Partners LLP", rec.FirmName)
	require.Equal(t, "1998", rec.AdmissionDate)
	require.Equal(t, "416-555-0100", rec.Phone, "labelled value wins over tel link")
	require.Equal(t, "Practising", rec.BarStatus)
	require.Equal(t, "Jane@DoeLaw.ca", rec.Email)
	require.Equal(t, "https://www.doelaw.ca", rec.Website)
	require.Equal(t, "French, Cree", rec.Extra["languages"])
}

func TestParseEmptyPage(t *testing.T) {
	t.Parallel()
	rec, err := Parse([]byte("<html></html>"), "", nil)
	require.NoError(t, err)
	require.True(t, rec.Get("email") == "" && rec.Website == "")
}
