// Package mixture fits one-dimensional Gaussian mixtures by expectation
// maximisation.
package mixture

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// deadMass is the responsibility mass under which a component is considered
// to have lost all of its points.
const deadMass = 1e-12

// #region init
// Init spreads k components over the sample quantiles with the pooled
// variance and equal weights. Deterministic for a given input.
func Init(samples []float64, k int) Params {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mean := stat.Mean(sorted, nil)
	var ss float64
	for _, x := range sorted {
		d := x - mean
		ss += d * d
	}
	variance := ss / float64(len(sorted))

	comps := make([]Component, k)
	for j := range comps {
		idx := int((float64(j) + 0.5) / float64(k) * float64(len(sorted)))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		comps[j] = Component{Mean: sorted[idx], Variance: variance, Weight: 1 / float64(k)}
	}
	return Params{Components: comps, LogLikelihood: math.NaN()}
}

// #endregion init

// #region density
// componentLogDensities returns log(w_k) + log N(x | mean_k, var_k) per component.
func (p Params) componentLogDensities(x float64, dst []float64) []float64 {
	dst = dst[:0]
	for _, c := range p.Components {
		if c.Weight <= 0 || c.Variance <= 0 {
			dst = append(dst, math.Inf(-1))
			continue
		}
		n := distuv.Normal{Mu: c.Mean, Sigma: math.Sqrt(c.Variance)}
		dst = append(dst, math.Log(c.Weight)+n.LogProb(x))
	}
	return dst
}

// Posterior returns the responsibility of every component for x.
func (p Params) Posterior(x float64) []float64 {
	logs := p.componentLogDensities(x, make([]float64, 0, p.K()))
	lse := floats.LogSumExp(logs)
	out := make([]float64, len(logs))
	for k, l := range logs {
		out[k] = math.Exp(l - lse)
	}
	return out
}

// Predict returns the index of the component with maximal posterior for x.
// Ties resolve to the lowest index.
func (p Params) Predict(x float64) int {
	if p.K() <= 1 {
		return 0
	}
	logs := p.componentLogDensities(x, make([]float64, 0, p.K()))
	best := 0
	for k := 1; k < len(logs); k++ {
		if logs[k] > logs[best] {
			best = k
		}
	}
	return best
}

// LogLikelihoodOf evaluates the total log-likelihood of samples.
func (p Params) LogLikelihoodOf(samples []float64) float64 {
	buf := make([]float64, 0, p.K())
	var ll float64
	for _, x := range samples {
		buf = p.componentLogDensities(x, buf)
		ll += floats.LogSumExp(buf)
	}
	return ll
}

// BIC is the Bayesian information criterion of the fit over n samples
// (3K-1 free parameters). Lower is better.
func (p Params) BIC(n int) float64 {
	free := float64(3*p.K() - 1)
	return -2*p.LogLikelihood + free*math.Log(float64(n))
}

// Degenerate reports whether any component variance is at or below minVariance.
func (p Params) Degenerate(minVariance float64) bool {
	for _, c := range p.Components {
		if !(c.Variance > minVariance) {
			return true
		}
	}
	return false
}

// #endregion density

// #region step
// Step runs one E and one M step from p and returns the new parameter record
// together with the log-likelihood of samples under p.
func Step(samples []float64, p Params) (Params, float64) {
	k := p.K()
	mass := make([]float64, k)
	sumX := make([]float64, k)
	resp := make([][]float64, len(samples))

	buf := make([]float64, 0, k)
	var ll float64
	for i, x := range samples {
		buf = p.componentLogDensities(x, buf)
		lse := floats.LogSumExp(buf)
		ll += lse
		r := make([]float64, k)
		for j, l := range buf {
			r[j] = math.Exp(l - lse)
			mass[j] += r[j]
			sumX[j] += r[j] * x
		}
		resp[i] = r
	}

	next := Params{
		Components:    make([]Component, k),
		LogLikelihood: math.NaN(),
		Iterations:    p.Iterations + 1,
	}
	for j := 0; j < k; j++ {
		if mass[j] < deadMass {
			// lost all points: weight and variance zero, flagged degenerate later
			next.Components[j] = Component{Mean: p.Components[j].Mean}
			continue
		}
		mean := sumX[j] / mass[j]
		var ss float64
		for i, x := range samples {
			d := x - mean
			ss += resp[i][j] * d * d
		}
		next.Components[j] = Component{
			Mean:     mean,
			Variance: ss / mass[j],
			Weight:   mass[j],
		}
	}

	total := floats.Sum(mass)
	for j := range next.Components {
		next.Components[j].Weight /= total
	}
	return next, ll
}

// #endregion step

// #region fit
// Fit runs EM for k components until the relative log-likelihood change drops
// below cfg.Tolerance, a component degenerates, or cfg.MaxIterations is hit.
// A degenerate result is returned without error; callers decide whether to
// accept it.
func Fit(ctx context.Context, samples []float64, k int, cfg Config) (Params, error) {
	if len(samples) == 0 {
		return Params{}, fmt.Errorf("fit %d components: no samples", k)
	}
	if k < 1 {
		return Params{}, fmt.Errorf("fit: component count %d < 1", k)
	}

	p := Init(samples, k)
	if k == 1 {
		// closed form; EM would converge in a single step anyway
		p.Iterations = 1
		p.Converged = true
		if !p.Degenerate(cfg.MinVariance) {
			p.LogLikelihood = p.LogLikelihoodOf(samples)
		}
		return p, nil
	}

	prevLL := math.Inf(-1)
	for it := 0; it < cfg.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return Params{}, fmt.Errorf("fit %d components: %w", k, err)
		}
		if p.Degenerate(cfg.MinVariance) {
			return p, nil
		}
		next, ll := Step(samples, p)
		if math.Abs(ll-prevLL) <= cfg.Tolerance*math.Max(1, math.Abs(ll)) {
			p.LogLikelihood = ll
			p.Converged = true
			return p, nil
		}
		prevLL = ll
		p = next
	}

	if !p.Degenerate(cfg.MinVariance) {
		p.LogLikelihood = p.LogLikelihoodOf(samples)
	}
	return p, nil
}

// #endregion fit
