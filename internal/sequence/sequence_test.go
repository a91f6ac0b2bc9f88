package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundtrip(t *testing.T) {
	cases := []string{"0", "1", "42", "999999999", "123456789"}
	for _, c := range cases {
		n, err := Parse(c)
		require.NoError(t, err)
		assert.Equal(t, c, Format(n))
	}
}

func TestParseRejectsLeadingZero(t *testing.T) {
	_, err := Parse("007")
	require.Error(t, err)
}

func TestParseRejectsNonDigit(t *testing.T) {
	_, err := Parse("12a")
	require.Error(t, err)
}

func TestParseRejectsOverflow(t *testing.T) {
	_, err := Parse("1000000000")
	require.Error(t, err)
}

func TestParseRejectsEmptyAndTooLong(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)

	_, err = Parse("1234567890")
	require.Error(t, err)
}

func TestNextOverflow(t *testing.T) {
	_, err := Next(Max)
	require.Error(t, err)
}

func TestNextIncrements(t *testing.T) {
	n, err := Next(41)
	require.NoError(t, err)
	assert.Equal(t, Number(42), n)
}

func TestToPathTripletConcatenatesToCanonicalForm(t *testing.T) {
	n, err := Parse("123456789")
	require.NoError(t, err)

	triplet := ToPathTriplet(n)
	assert.Equal(t, "123", triplet.Root)
	assert.Equal(t, "456", triplet.Parent)
	assert.Equal(t, "789", triplet.File)
	assert.Equal(t, CanonicalPadded(n), triplet.Root+triplet.Parent+triplet.File)
}

func TestTripletRemoteAndLocalPaths(t *testing.T) {
	n, _ := Parse("42")
	triplet := ToPathTriplet(n)
	assert.Equal(t, "000/000/042", triplet.RemotePath())
	assert.Equal(t, "000/000", triplet.LocalDir())
}
