package engine

// RecoveryCheck is the verdict for a single metric.
type RecoveryCheck struct {
	Recovered bool    `json:"recovered"`
	Baseline  float64 `json:"baseline,omitempty"`
	Current   float64 `json:"current"`
}

// RecoveryStatus is the overall recovery verdict with the per-metric breakdown.
type RecoveryStatus struct {
	Recovered bool                     `json:"recovered"`
	Checks    map[string]RecoveryCheck `json:"checks"`
}

// Verifier compares a post-mitigation metrics snapshot against the baseline.
// Tolerances are asymmetric: latency is the most sensitive operational signal
// so it gets the tightest band, error rate tolerates 2x baseline, and resource
// usage is an absolute ceiling with no baseline comparison.
type Verifier struct {
	latencyFactor   float64
	errorRateFactor float64
	resourceCeiling float64

	defaultBaselineP99    float64
	defaultBaselineErrors float64
}

// NewVerifier constructs a verifier with the standard tolerance bands.
func NewVerifier() *Verifier {
	return &Verifier{
		latencyFactor:         1.2,
		errorRateFactor:       2.0,
		resourceCeiling:       80,
		defaultBaselineP99:    200,
		defaultBaselineErrors: 0.1,
	}
}

// CheckRecovery renders the recovery verdict. Metrics absent from current are
// not checked; absence is not failure. The call is pure: the same inputs
// always yield the same verdict.
func (v *Verifier) CheckRecovery(baseline, current map[string]float64) RecoveryStatus {
	status := RecoveryStatus{
		Recovered: true,
		Checks:    make(map[string]RecoveryCheck),
	}

	record := func(name string, check RecoveryCheck) {
		status.Checks[name] = check
		status.Recovered = status.Recovered && check.Recovered
	}

	if p99, ok := current["latency_p99"]; ok {
		base := valueOr(baseline, "latency_p99", v.defaultBaselineP99)
		record("latency", RecoveryCheck{
			Recovered: p99 <= base*v.latencyFactor,
			Baseline:  base,
			Current:   p99,
		})
	}

	if errRate, ok := current["error_rate"]; ok {
		base := valueOr(baseline, "error_rate", v.defaultBaselineErrors)
		record("error_rate", RecoveryCheck{
			Recovered: errRate <= base*v.errorRateFactor,
			Baseline:  base,
			Current:   errRate,
		})
	}

	if cpu, ok := current["cpu_usage"]; ok {
		record("cpu", RecoveryCheck{
			Recovered: cpu < v.resourceCeiling,
			Current:   cpu,
		})
	}

	if mem, ok := current["memory_usage"]; ok {
		record("memory", RecoveryCheck{
			Recovered: mem < v.resourceCeiling,
			Current:   mem,
		})
	}

	return status
}

func valueOr(metrics map[string]float64, key string, fallback float64) float64 {
	if v, ok := metrics[key]; ok {
		return v
	}
	return fallback
}
