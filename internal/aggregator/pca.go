package aggregator

import (
	"fmt"
	"math"

	"abidenet/domain/results"
	"abidenet/domain/subject"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const zEps = 1e-12

// pcaScore is the decomposition of one block
type pcaScore struct {
	Final  []float64
	Kind   string
	VarExp []float64   // first k explained-variance fractions
	PCz    [][]float64 // k z-scored, anchored components
	NUsed  int         // edges with at least one finite value
}

func naScore(n int) pcaScore {
	final := make([]float64, n)
	for i := range final {
		final[i] = math.NaN()
	}
	return pcaScore{Final: final, Kind: results.KindNA}
}

// finiteColumns returns the columns of x holding at least one finite value
func finiteColumns(x *mat.Dense) []int {
	n, m := x.Dims()
	var cols []int
	for j := 0; j < m; j++ {
		for i := 0; i < n; i++ {
			if v := x.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				cols = append(cols, j)
				break
			}
		}
	}
	return cols
}

// impute copies the given columns of x, replacing non-finite cells with the
// column mean of the finite ones
func impute(x *mat.Dense, cols []int) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(cols), nil)
	for c, j := range cols {
		sum, cnt := 0.0, 0
		for i := 0; i < n; i++ {
			if v := x.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				sum += v
				cnt++
			}
		}
		mean := sum / float64(cnt)
		for i := 0; i < n; i++ {
			v := x.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = mean
			}
			out.Set(i, c, v)
		}
	}
	return out
}

// anchorSignal is the per-subject reference each component is oriented to
func anchorSignal(x *mat.Dense, mode AnchorMode, labels []subject.Diagnosis) []float64 {
	n, m := x.Dims()
	a := make([]float64, n)
	for i := 0; i < n; i++ {
		switch mode {
		case AnchorGroup:
			a[i] = labels[i].Sign()
		case AnchorAbs:
			for j := 0; j < m; j++ {
				a[i] += math.Abs(x.At(i, j))
			}
			a[i] /= float64(m)
		default:
			a[i] = floats.Sum(x.RawRowView(i)) / float64(m)
		}
	}
	return a
}

// alignSigns flips each of the first k score columns whose correlation with
// anchor is negative. A constant anchor leaves every sign as it is.
func alignSigns(scores *mat.Dense, anchor []float64, k int) {
	if _, sd := stat.MeanStdDev(anchor, nil); sd == 0 || math.IsNaN(sd) {
		return
	}
	n, _ := scores.Dims()
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, j, scores)
		if r := stat.Correlation(col, anchor, nil); r < 0 {
			for i := 0; i < n; i++ {
				scores.Set(i, j, -scores.At(i, j))
			}
		}
	}
}

// zscore standardizes v with the sample SD
func zscore(v []float64) []float64 {
	mean, sd := stat.MeanStdDev(v, nil)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - mean) / (sd + zEps)
	}
	return out
}

// scorePCA reduces a (subjects x block edges) matrix to one score per subject.
// Components come from a thin SVD of the column-centred, mean-imputed matrix;
// each of the first k is oriented to the anchor and z-scored. With k == 1 the
// score is PC1, otherwise the variance-weighted composite re-standardized.
func scorePCA(x *mat.Dense, nPCA int, mode AnchorMode, labels []subject.Diagnosis) (pcaScore, error) {
	n, _ := x.Dims()
	cols := finiteColumns(x)
	if n < 2 || len(cols) == 0 {
		res := naScore(n)
		res.NUsed = len(cols)
		return res, nil
	}

	xi := impute(x, cols)
	anchor := anchorSignal(xi, mode, labels)

	m := len(cols)
	xc := mat.NewDense(n, m, nil)
	xc.Copy(xi)
	col := make([]float64, n)
	for j := 0; j < m; j++ {
		mat.Col(col, j, xc)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			xc.Set(i, j, col[i]-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThinU); !ok {
		return pcaScore{}, fmt.Errorf("svd of %dx%d block did not converge", n, m)
	}
	sv := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	kMax := min(n, m)
	k := max(1, min(nPCA, kMax))
	scores := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			scores.Set(i, j, u.At(i, j)*sv[j])
		}
	}

	total := 0.0
	for _, s := range sv {
		total += s * s
	}
	varExp := make([]float64, k)
	if total > 0 {
		for j := range varExp {
			varExp[j] = sv[j] * sv[j] / total
		}
	}

	alignSigns(scores, anchor, k)

	pcz := make([][]float64, k)
	for j := 0; j < k; j++ {
		mat.Col(col, j, scores)
		pcz[j] = zscore(col)
	}

	res := pcaScore{VarExp: varExp, PCz: pcz, NUsed: m}
	if k == 1 {
		res.Final = pcz[0]
		res.Kind = results.KindPC1
		return res, nil
	}

	w := make([]float64, k)
	copy(w, varExp)
	if sum := floats.Sum(w); sum > 0 {
		floats.Scale(1/(sum+zEps), w)
	} else {
		for j := range w {
			w[j] = 1 / float64(k)
		}
	}
	comp := make([]float64, n)
	for j := 0; j < k; j++ {
		floats.AddScaled(comp, w[j], pcz[j])
	}
	res.Final = zscore(comp)
	res.Kind = fmt.Sprintf("Composite_PC1..PC%d", k)
	return res, nil
}
