package ari

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aricluster/internal/models"
)

func pMap(data []float64, w, h, d int) *models.StatMap {
	return &models.StatMap{Data: data, Width: w, Height: h, Depth: d, Kind: models.KindP, Name: "test"}
}

func allTrue(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

// TestDerivePValuesPMap checks that p-maps pass through with clipping and
// out-of-mask neutralization.
func TestDerivePValuesPMap(t *testing.T) {
	sm := pMap([]float64{0.3, 1.5, -0.2, 0.04}, 4, 1, 1)
	mask := []bool{true, true, true, false}

	p, err := DerivePValues(sm, mask, true)
	require.NoError(t, err)

	assert.Equal(t, 0.3, p[0])
	assert.Equal(t, 1.0, p[1], "values above 1 clip to 1")
	assert.Equal(t, 0.0, p[2], "values below 0 clip to 0")
	assert.Equal(t, 1.0, p[3], "out-of-mask p-values become 1")
}

// TestDerivePValuesZMap checks the z-score conversions against known normal
// quantiles.
func TestDerivePValuesZMap(t *testing.T) {
	sm := &models.StatMap{
		Data: []float64{1.96, 0, -1.96, 7},
		Width: 4, Height: 1, Depth: 1,
		Kind: models.KindZ,
	}
	mask := []bool{true, true, true, false}

	two, err := DerivePValues(sm, mask, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, two[0], 1e-3)
	assert.Equal(t, 1.0, two[1], "z=0 gives p=1 two-sided")
	assert.InDelta(t, two[0], two[2], 1e-15, "two-sided is symmetric in sign")
	assert.Equal(t, 1.0, two[3], "out-of-mask z becomes 0 before conversion")

	one, err := DerivePValues(sm, mask, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.025, one[0], 1e-3)
	assert.Equal(t, 0.5, one[1])
	assert.InDelta(t, 0.975, one[2], 1e-3)
	assert.Equal(t, 0.5, one[3])
}

// TestDerivePValuesTMap checks the t-value conversions: the normal fallback
// at zero degrees of freedom and the one/two-sided relationship.
func TestDerivePValuesTMap(t *testing.T) {
	data := []float64{2.5, 1.0, 0}
	mask := allTrue(3)

	tm := &models.StatMap{Data: data, Width: 3, Height: 1, Depth: 1,
		Kind: models.KindT, DegreesOfFreedom: 10}
	zm := &models.StatMap{Data: data, Width: 3, Height: 1, Depth: 1,
		Kind: models.KindZ}

	pt, err := DerivePValues(tm, mask, true)
	require.NoError(t, err)
	pz, err := DerivePValues(zm, mask, true)
	require.NoError(t, err)

	// The t distribution has heavier tails than the normal.
	assert.Greater(t, pt[0], pz[0])
	assert.Less(t, pt[0], pt[1], "larger statistics give smaller p-values")
	assert.Equal(t, 1.0, pt[2])

	one, err := DerivePValues(tm, mask, false)
	require.NoError(t, err)
	for i, v := range data {
		if v > 0 {
			assert.InDelta(t, 2*one[i], pt[i], 1e-12,
				"two-sided doubles the one-sided tail for positive statistics")
		}
	}

	// Zero degrees of freedom means the normal approximation.
	tm0 := &models.StatMap{Data: data, Width: 3, Height: 1, Depth: 1,
		Kind: models.KindT}
	pt0, err := DerivePValues(tm0, mask, true)
	require.NoError(t, err)
	assert.Equal(t, pz, pt0)
}

// TestDerivePValuesBadInput checks the dimension validation.
func TestDerivePValuesBadInput(t *testing.T) {
	sm := pMap([]float64{0.1, 0.2}, 3, 1, 1)
	_, err := DerivePValues(sm, allTrue(3), true)
	assert.Error(t, err)

	sm = pMap([]float64{0.1, 0.2, 0.3}, 3, 1, 1)
	_, err = DerivePValues(sm, allTrue(2), true)
	assert.Error(t, err)
}
