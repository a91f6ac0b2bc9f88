package htmlindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseULDialect(t *testing.T) {
	page := `<html><body><ul>
<li><a href="../">Parent</a></li>
<li><a href=".hidden">.hidden</a></li>
<li><a href="042.state.txt">042.state.txt</a></li>
<li><a href="042.osc.gz">042.osc.gz</a></li>
</ul></body></html>`

	names, err := Parse(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"042.osc.gz", "042.state.txt"}, names)
}

func TestParseTableDialect(t *testing.T) {
	page := `<html><body><table>
<tr><td><a href="../">Parent Directory</a></td></tr>
<tr><td><a href="042.state.txt">042.state.txt</a></td></tr>
<tr><td><a href="042.osc.gz">042.osc.gz</a></td></tr>
</table></body></html>`

	names, err := Parse(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"042.osc.gz", "042.state.txt"}, names)
}

func TestParseAmbiguousBothDialects(t *testing.T) {
	page := "<ul></ul><table></table>"
	_, err := Parse(page)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AmbiguousIndex")
}

func TestParseNeitherDialect(t *testing.T) {
	_, err := Parse("<html><body>nothing here</body></html>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AmbiguousIndex")
}

func TestParseDeduplicatesEntries(t *testing.T) {
	page := `<ul>
<li><a href="042.osc.gz">042.osc.gz</a></li>
<li><a href="042.osc.gz">042.osc.gz</a></li>
</ul>`
	names, err := Parse(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"042.osc.gz"}, names)
}
