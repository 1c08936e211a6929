// Package ins derives velocity and position from fused acceleration, anchored
// to barometric and GNSS references when they are fresh.
package ins

// ComplementaryFilter integrates a rate while pulling the integral toward an
// absolute reference with proportional gain kp.
type ComplementaryFilter struct {
	kp       float64
	interval float64
	value    float64
}

func NewComplementaryFilter(kp, interval float64) ComplementaryFilter {
	return ComplementaryFilter{kp: kp, interval: interval}
}

// Filter advances one interval and returns the new value.
func (f *ComplementaryFilter) Filter(reference, rate float64) float64 {
	f.value += (rate + f.kp*(reference-f.value)) * f.interval
	return f.value
}

// Integrate advances the value by rate alone.
func (f *ComplementaryFilter) Integrate(rate float64) float64 {
	f.value += rate * f.interval
	return f.value
}

func (f *ComplementaryFilter) Value() float64 { return f.value }
