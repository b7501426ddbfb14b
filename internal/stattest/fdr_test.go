package stattest

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		p      []float64
		want   []float64
	}{
		{"bh", MethodBH, []float64{0.01, 0.04, 0.03, 0.005}, []float64{0.02, 0.04, 0.04, 0.02}},
		{"bh step-up keeps order", MethodBH, []float64{0.04, 0.041}, []float64{0.041, 0.041}},
		{"by", MethodBY, []float64{0.01, 0.02}, []float64{0.03, 0.03}},
		{"bonferroni", MethodBonferroni, []float64{0.01, 0.2, 0.5}, []float64{0.03, 0.6, 1}},
		{"holm", MethodHolm, []float64{0.01, 0.04, 0.03}, []float64{0.03, 0.06, 0.06}},
		{"single", MethodBH, []float64{0.2}, []float64{0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Adjust(tt.p, tt.method)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-12, "index %d", i)
			}
		})
	}
}

func TestAdjustMonotoneInRawOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	p := make([]float64, 200)
	for i := range p {
		p[i] = math.Pow(rng.Float64(), 3)
	}
	for _, m := range []Method{MethodBH, MethodBY, MethodBonferroni, MethodHolm} {
		adj, err := Adjust(p, m)
		require.NoError(t, err)

		order := make([]int, len(p))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })
		for r := 1; r < len(order); r++ {
			assert.LessOrEqual(t, adj[order[r-1]], adj[order[r]], "%s rank %d", m, r)
		}
		for i := range p {
			assert.GreaterOrEqual(t, adj[i], p[i], "%s never lowers a p-value", m)
			assert.LessOrEqual(t, adj[i], 1.0)
		}
	}
}

func TestAdjustSkipsNaN(t *testing.T) {
	adj, err := Adjust([]float64{math.NaN(), 0.01, 0.02}, MethodBH)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(adj[0]))
	assert.InDelta(t, 0.02, adj[1], 1e-12)
	assert.InDelta(t, 0.02, adj[2], 1e-12)

	empty, err := Adjust(nil, MethodBH)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("holm")
	require.NoError(t, err)
	assert.Equal(t, MethodHolm, m)
	_, err = ParseMethod("storey")
	assert.Error(t, err)
	_, err = Adjust([]float64{0.1}, Method("storey"))
	assert.Error(t, err)
}
