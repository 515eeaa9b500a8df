package combo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSpace(t *testing.T, specs ...paramspace.ParameterSpec) *paramspace.Space {
	t.Helper()
	s, err := paramspace.NewSpace("pp", paramspace.Options{StageMatchers: []string{"svfinder"}}, specs...)
	require.NoError(t, err)
	return s
}

func floats(vals ...float64) []paramspace.Value {
	out := make([]paramspace.Value, len(vals))
	for i, v := range vals {
		out[i] = paramspace.Float(v)
	}
	return out
}

func photonSpace(t *testing.T) *paramspace.Space {
	t.Helper()
	return mustSpace(t,
		paramspace.ParameterSpec{Key: "svertexer.minCosPA", Default: paramspace.Float(0.9), Scan: floats(0.8, 0.85, 0.9, 0.95)},
		paramspace.ParameterSpec{Key: "svertexer.minCosPAXYMeanVertex", Default: paramspace.Float(0.95), Scan: floats(0.9, 0.95, 0.98)},
		paramspace.ParameterSpec{Key: "svertexer.maxChi2", Default: paramspace.Float(2), Scan: floats(1, 2, 3, 5)},
	)
}

func TestOATChi2Labels(t *testing.T) {
	t.Parallel()

	space := mustSpace(t, paramspace.ParameterSpec{
		Key:     "chi2",
		Default: paramspace.Int(30),
		Scan:    []paramspace.Value{paramspace.Int(30), paramspace.Int(100), paramspace.Int(1000)},
	})

	combos := OAT(space)
	labels := make([]string, len(combos))
	for i, c := range combos {
		labels[i] = c.Label
	}
	assert.Equal(t, []string{"OAT_chi2_30", "OAT_chi2_100", "OAT_chi2_1000"}, labels)
	v, ok := combos[1].Assignments.Get("chi2")
	require.True(t, ok)
	assert.Equal(t, "100", v.String())
}

func TestOATSizeAndSingleDifference(t *testing.T) {
	t.Parallel()

	space := photonSpace(t)
	combos := OAT(space)

	want := 0
	for _, p := range space.Specs() {
		want += len(p.Scan)
	}
	require.Len(t, combos, want)

	for _, c := range combos {
		assert.Len(t, c.Assignments, space.Len(), c.Label)
		assert.LessOrEqual(t, len(Diff(space, c)), 1, c.Label)
	}
	assert.Equal(t, "OAT_minCosPA_0.8", combos[0].Label)
	assert.Equal(t, "OAT_maxChi2_5.0", combos[len(combos)-1].Label)
}

func TestGridSizeOrderAndLabels(t *testing.T) {
	t.Parallel()

	space := mustSpace(t,
		paramspace.ParameterSpec{Key: "svertexer.minCosPA", Default: paramspace.Float(0.9), Scan: floats(0.8, 0.85, 0.9, 0.95)},
		paramspace.ParameterSpec{Key: "svertexer.maxChi2", Default: paramspace.Float(2), Scan: floats(1, 2, 3, 5)},
		paramspace.ParameterSpec{Key: "svertexer.minDCAToPV", Default: paramspace.Float(0.05), Scan: floats(0.01, 0.05)},
	)

	combos, err := Grid(space, []string{"minCosPA", "maxChi2"})
	require.NoError(t, err)
	require.Len(t, combos, 16)

	for i, c := range combos {
		assert.Regexp(t, fmt.Sprintf(`^GRID_%d_minCosPA=[0-9.]+_maxChi2=[0-9.]+$`, i), c.Label)
		diff := Diff(space, c)
		for _, as := range diff {
			assert.Contains(t, []string{"svertexer.minCosPA", "svertexer.maxChi2"}, as.Key)
		}
		dca, _ := c.Assignments.Get("svertexer.minDCAToPV")
		assert.Equal(t, "0.05", dca.String())
	}
	assert.Equal(t, "GRID_0_minCosPA=0.8_maxChi2=1.0", combos[0].Label)
	assert.Equal(t, "GRID_1_minCosPA=0.8_maxChi2=2.0", combos[1].Label)
	assert.Equal(t, "GRID_4_minCosPA=0.85_maxChi2=1.0", combos[4].Label)
	assert.Equal(t, "GRID_15_minCosPA=0.95_maxChi2=5.0", combos[15].Label)
}

func TestGridIsDeterministic(t *testing.T) {
	t.Parallel()

	space := photonSpace(t)
	first, err := Grid(space, []string{"svertexer.maxChi2", "minCosPAXYMeanVertex"})
	require.NoError(t, err)
	second, err := Grid(space, []string{"svertexer.maxChi2", "minCosPAXYMeanVertex"})
	require.NoError(t, err)

	require.Len(t, first, 12)
	if diff := cmp.Diff(first, second, cmp.Comparer(func(a, b paramspace.Value) bool {
		return a.String() == b.String()
	})); diff != "" {
		t.Fatalf("grid not deterministic (-first +second):\n%s", diff)
	}
}

func TestGridUnknownKey(t *testing.T) {
	t.Parallel()

	space := photonSpace(t)
	_, err := Grid(space, []string{"minCosPA", "bogus"})

	var unknown *UnknownParameterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "bogus", unknown.Key)
	assert.Equal(t, []string{"minCosPA", "minCosPAXYMeanVertex", "maxChi2"}, unknown.Valid)
}

func TestGridRejectsDuplicatesAndEmpty(t *testing.T) {
	t.Parallel()

	space := photonSpace(t)
	var cfgErr *paramspace.ConfigurationError

	_, err := Grid(space, []string{"minCosPA", "svertexer.minCosPA"})
	assert.True(t, errors.As(err, &cfgErr))

	_, err = Grid(space, nil)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestGridCeiling(t *testing.T) {
	t.Parallel()

	var specs []paramspace.ParameterSpec
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		scan := make([]paramspace.Value, 10)
		for i := range scan {
			scan[i] = paramspace.Int(int64(i))
		}
		specs = append(specs, paramspace.ParameterSpec{Key: "ns." + name, Default: paramspace.Int(0), Scan: scan})
	}
	space := mustSpace(t, specs...)

	_, err := Grid(space, []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	_, err = Grid(space, []string{"a", "b", "c", "d", "e"})
	var cfgErr *paramspace.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestAssignmentsHelpers(t *testing.T) {
	t.Parallel()

	as := Assignments{
		{Key: "b.y", Value: paramspace.Int(2)},
		{Key: "a.x", Value: paramspace.Int(1)},
	}
	assert.Equal(t, []string{"b.y", "a.x"}, as.Keys())
	assert.Equal(t, "b.y=2 a.x=1", as.String())
	assert.Equal(t, []string{"a.x", "b.y"}, SortedKeys(as.Map()))
	_, ok := as.Get("c.z")
	assert.False(t, ok)
}
