package reinforcement

import (
	"fmt"
	"math/rand"
	"sync"
)

// Signal indices match types.RankerSource.SignalIndex(): bm25=0, vector=1,
// graphrag=2, pramana=3.
const numSignals = 4

// State is the serializable snapshot of a WeightLearner: 4 (α, β) pairs plus
// the running total-feedback counter.
type State struct {
	Alpha        [numSignals]float64 `json:"alpha"`
	Beta         [numSignals]float64 `json:"beta"`
	TotalUpdates int64                `json:"total_updates"`
}

// WeightLearner holds Thompson-sampled Beta posteriors for the four hybrid
// search signals. Sampling and updates are safe for concurrent use.
type WeightLearner struct {
	mu    sync.RWMutex
	alpha [numSignals]float64
	beta  [numSignals]float64
	total int64
	rng   *rand.Rand
}

// NewWeightLearner returns a learner with uniform Beta(1,1) priors on all
// four signals, sampling with the given seed.
func NewWeightLearner(seed int64) *WeightLearner {
	wl := &WeightLearner{
		rng: rand.New(rand.NewSource(seed)), // #nosec G404 - weight sampling, not security-sensitive
	}
	for i := 0; i < numSignals; i++ {
		wl.alpha[i] = 1.0
		wl.beta[i] = 1.0
	}
	return wl
}

// Sample draws an independent Beta(αᵢ, βᵢ) sample per signal and normalizes
// the 4 values to sum to 1. If the raw samples are all numerically zero, it
// returns uniform 0.25 weights instead of dividing by zero.
func (wl *WeightLearner) Sample() [numSignals]float64 {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	var raw [numSignals]float64
	var sum float64
	for i := 0; i < numSignals; i++ {
		raw[i] = SampleBeta(wl.alpha[i], wl.beta[i], wl.rng)
		sum += raw[i]
	}

	if sum == 0 {
		var uniform [numSignals]float64
		for i := range uniform {
			uniform[i] = 0.25
		}
		return uniform
	}

	var weights [numSignals]float64
	for i := 0; i < numSignals; i++ {
		weights[i] = raw[i] / sum
	}
	return weights
}

// Update applies a Bayesian success/failure observation to one signal.
// signal must be in [0, numSignals); out-of-range indices are ignored.
func (wl *WeightLearner) Update(signal int, success bool) {
	if signal < 0 || signal >= numSignals {
		return
	}

	wl.mu.Lock()
	defer wl.mu.Unlock()

	if success {
		wl.alpha[signal]++
	} else {
		wl.beta[signal]++
	}
	wl.total++
}

// Means returns the posterior mean αᵢ/(αᵢ+βᵢ) for each signal, for
// diagnostics and the monitoring surface.
func (wl *WeightLearner) Means() [numSignals]float64 {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	var means [numSignals]float64
	for i := 0; i < numSignals; i++ {
		means[i] = BetaMean(wl.alpha[i], wl.beta[i])
	}
	return means
}

// Modes returns the most likely weight per signal (the posterior mode of
// Beta(αᵢ, βᵢ)), or -1 for a signal whose posterior has no mode yet
// (αᵢ or βᵢ ≤ 1 — still true of the uniform Beta(1,1) prior before any
// feedback). Means is the right summary for normalizing into RRF weights;
// Modes is the complementary diagnostic for "which single value is most
// likely", useful for a monitoring surface.
func (wl *WeightLearner) Modes() [numSignals]float64 {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	var modes [numSignals]float64
	for i := 0; i < numSignals; i++ {
		modes[i] = BetaMode(wl.alpha[i], wl.beta[i])
	}
	return modes
}

// Variances returns the posterior variance per signal, a measure of how
// settled each signal's weight is: a large variance means few observations
// have landed on that signal yet.
func (wl *WeightLearner) Variances() [numSignals]float64 {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	var variances [numSignals]float64
	for i := 0; i < numSignals; i++ {
		variances[i] = BetaVariance(wl.alpha[i], wl.beta[i])
	}
	return variances
}

// TotalUpdates returns the number of feedback observations applied so far.
func (wl *WeightLearner) TotalUpdates() int64 {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return wl.total
}

// Serialize returns a snapshot suitable for persistence.
func (wl *WeightLearner) Serialize() State {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return State{
		Alpha:        wl.alpha,
		Beta:         wl.beta,
		TotalUpdates: wl.total,
	}
}

// Restore overwrites the learner's posteriors from a previously serialized
// state. Malformed input (any non-positive α or β) is rejected silently and
// the learner's current state is preserved.
func (wl *WeightLearner) Restore(state State) error {
	for i := 0; i < numSignals; i++ {
		if state.Alpha[i] <= 0 || state.Beta[i] <= 0 {
			return fmt.Errorf("reinforcement: invalid state at signal %d: alpha=%v beta=%v", i, state.Alpha[i], state.Beta[i])
		}
	}

	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.alpha = state.Alpha
	wl.beta = state.Beta
	wl.total = state.TotalUpdates
	return nil
}
