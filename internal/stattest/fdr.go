package stattest

import (
	"fmt"
	"math"
	"sort"

	"abidenet/domain/core"
)

// Method is a multiple-comparison correction
type Method string

const (
	MethodBH         Method = "fdr_bh"
	MethodBY         Method = "fdr_by"
	MethodBonferroni Method = "bonferroni"
	MethodHolm       Method = "holm"
)

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodBH, MethodBY, MethodBonferroni, MethodHolm:
		return m, nil
	}
	return "", fmt.Errorf("%w: correction method %q", core.ErrUnknownOption, s)
}

// Adjust corrects one family of p-values. NaN entries are left out of the
// family and stay NaN. The result is in input order.
func Adjust(p []float64, method Method) ([]float64, error) {
	out := make([]float64, len(p))
	order := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		order = append(order, i)
	}
	m := len(order)
	if m == 0 {
		return out, nil
	}
	sort.SliceStable(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })
	n := float64(m)

	switch method {
	case MethodBH, MethodBY:
		scale := 1.0
		if method == MethodBY {
			scale = harmonic(m)
		}
		// step-up: running minimum from the largest p downwards
		running := math.Inf(1)
		for r := m - 1; r >= 0; r-- {
			i := order[r]
			v := p[i] * n * scale / float64(r+1)
			if v < running {
				running = v
			}
			out[i] = math.Min(1, running)
		}
	case MethodBonferroni:
		for _, i := range order {
			out[i] = math.Min(1, p[i]*n)
		}
	case MethodHolm:
		// step-down: running maximum from the smallest p upwards
		running := 0.0
		for r, i := range order {
			v := p[i] * (n - float64(r))
			if v > running {
				running = v
			}
			out[i] = math.Min(1, running)
		}
	default:
		return nil, fmt.Errorf("%w: correction method %q", core.ErrUnknownOption, method)
	}
	return out, nil
}

func harmonic(m int) float64 {
	var h float64
	for k := 1; k <= m; k++ {
		h += 1 / float64(k)
	}
	return h
}
