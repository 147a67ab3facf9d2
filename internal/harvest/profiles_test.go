package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinProfiles(t *testing.T) {
	t.Parallel()

	part := ParticulatesProfile()
	require.NoError(t, part.Validate())
	assert.Equal(t, GasTree, part.Layout.Kind)
	assert.Equal(t, "AQI Data/Criteria Gases", part.Layout.Base)
	assert.Len(t, part.Parameters, 4)
	assert.Equal(t, YearRange{Start: 2010, End: 2022}, part.Years)

	tox := ToxicsProfile()
	require.NoError(t, tox.Validate())
	assert.Equal(t, []string{"HAPS", "VOC"}, tox.Classes)
	assert.False(t, tox.AbortOnEmpty)

	h := HarvestProfile()
	assert.True(t, h.AbortOnEmpty)
	assert.True(t, h.Aggregate)
	assert.Error(t, h.Validate(), "harvest needs classes and years before it validates")
	h.Classes = []string{"VOC"}
	h.Years = YearRange{Start: 2020, End: 2021}
	assert.NoError(t, h.Validate())
}

func TestLookupProfile(t *testing.T) {
	t.Parallel()

	p, err := LookupProfile(" Toxics ")
	require.NoError(t, err)
	assert.Equal(t, ProfileToxics, p.Name)

	_, err = LookupProfile("ozone")
	require.ErrorContains(t, err, "harvest, particulates, toxics")
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()

	base := ParticulatesProfile()

	p := base
	p.Delay = -1
	assert.Error(t, p.Validate())

	p = base
	p.Parameters = nil
	assert.Error(t, p.Validate())

	p = base
	p.Resolution = "magic"
	assert.Error(t, p.Validate())

	p = base
	p.Layout.Kind = "flat"
	assert.Error(t, p.Validate())
}
