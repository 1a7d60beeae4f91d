package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Text cells recognize numbers by the narrow digits-only rule; the broader
// full-string parse belongs to the formula evaluator.
func TestTextNumericRules(t *testing.T) {
	s := New()
	mustSet(t, s, "A1", "007")
	mustSet(t, s, "A2", "3.5")
	mustSet(t, s, "A3", "1e3")
	mustSet(t, s, "A4", "-5")

	assert.Equal(t, 7.0, cellValue(t, s, "A1"))
	assert.Equal(t, "3.5", cellValue(t, s, "A2"))
	assert.Equal(t, "1e3", cellValue(t, s, "A3"))
	assert.Equal(t, "-5", cellValue(t, s, "A4"))

	// A formula reading the same cells applies the broad parse.
	mustSet(t, s, "B1", "=A2*2")
	assert.Equal(t, 7.0, cellValue(t, s, "B1"))
	mustSet(t, s, "B2", "=A3+A4")
	assert.Equal(t, 995.0, cellValue(t, s, "B2"))
}

func TestEscapeVariants(t *testing.T) {
	s := New()
	mustSet(t, s, "A1", "'123")
	mustSet(t, s, "A2", "'")
	mustSet(t, s, "A3", "''quoted")

	assert.Equal(t, "123", cellValue(t, s, "A1"))
	assert.Equal(t, "", cellValue(t, s, "A2"))
	assert.Equal(t, "'quoted", cellValue(t, s, "A3"))

	c, err := s.GetCell(pos(t, "A2"))
	require.NoError(t, err)
	assert.Equal(t, "'", c.Text())

	// Escaped digits still coerce when a formula reads them.
	mustSet(t, s, "B1", "=A1+1")
	assert.Equal(t, 124.0, cellValue(t, s, "B1"))
}

func TestEmptyCellValue(t *testing.T) {
	s := New()
	mustSet(t, s, "A1", "")

	c, err := s.GetCell(pos(t, "A1"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Nil(t, c.Value())
	assert.Equal(t, "", c.Text())
	assert.Empty(t, c.ReferencedCells())
}
