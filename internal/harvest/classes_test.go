package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogHasSixteenClasses(t *testing.T) {
	t.Parallel()

	c := Catalog()
	assert.Len(t, c, 16)
	assert.Equal(t, "CORE_HAPS", c[0].Code)
	assert.Equal(t, "HAPS", c[len(c)-1].Code)

	c[0].Code = "mutated"
	_, ok := LookupClass("CORE_HAPS")
	assert.True(t, ok, "Catalog must return a copy")
}

func TestParseClassSelection(t *testing.T) {
	t.Parallel()

	known, unknown := ParseClassSelection(" VOC, HAPS ,voc,,AQI POLLUTANTS, NOPE")
	assert.Equal(t, []string{"VOC", "HAPS", "AQI POLLUTANTS"}, known)
	assert.Equal(t, []string{"voc", "NOPE"}, unknown)

	known, unknown = ParseClassSelection("")
	assert.Empty(t, known)
	assert.Empty(t, unknown)
}

func TestFilterClasses(t *testing.T) {
	t.Parallel()

	known, unknown := FilterClasses([]string{"PAH", " CRITERIA", "X"})
	assert.Equal(t, []string{"PAH", "CRITERIA"}, known)
	assert.Equal(t, []string{"X"}, unknown)
}

func TestNewMexicoCounties(t *testing.T) {
	t.Parallel()

	counties := NewMexicoCounties()
	assert.Len(t, counties, 25)
	assert.Equal(t, County{Code: "001", Name: "Bernalillo"}, counties[0])
	assert.Equal(t, County{Code: "045", Name: "San Juan"}, counties[24])
}
