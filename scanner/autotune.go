package scanner

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/time/rate"

	"github.com/Hellohistory/ErrorFile/logger"
)

const (
	defaultAutoTuneInterval  = 2 * time.Second
	defaultAutoTuneTargetCPU = 75.0
	minAutoTuneLimit         = 10
)

// autoTuneState steers the batch rate limiter toward a CPU target.
type autoTuneState struct {
	limit          int
	maxLimit       int
	cpuEWMA        float64
	cpuPID         pidController
	lastProcessed  int64
	throughputEWMA float64
}

type autoTuneTelemetry struct {
	pendingFn   func() int
	capacityFn  func() int
	processedFn func() int64
}

func (t autoTuneTelemetry) pending() int {
	if t.pendingFn == nil {
		return 0
	}
	return max(0, t.pendingFn())
}

func (t autoTuneTelemetry) capacity() int {
	if t.capacityFn == nil {
		return 0
	}
	return max(0, t.capacityFn())
}

func (t autoTuneTelemetry) processed() int64 {
	if t.processedFn == nil {
		return 0
	}
	return max(0, t.processedFn())
}

func initialAutoTune() *autoTuneState {
	limit, maxLimit := 800, 5000
	switch detectDiskType() {
	case "ssd":
		limit, maxLimit = 1200, 7000
	case "hdd":
		limit, maxLimit = 400, 3000
	}
	return &autoTuneState{limit: limit, maxLimit: maxLimit, cpuPID: newCPUPIDController()}
}

func startAutoTune(ctx context.Context, opts BatchOptions, limiter *rate.Limiter, state *autoTuneState, telemetry autoTuneTelemetry) {
	interval := opts.AutoTuneInterval
	if interval <= 0 {
		interval = defaultAutoTuneInterval
	}
	target := opts.AutoTuneTargetCPU
	if target <= 0 {
		target = defaultAutoTuneTargetCPU
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			sample := currentCPUPercent()
			if sample <= 0 {
				continue
			}
			delta := computeAutoTuneDelta(target, interval, state, sample, telemetry)
			applyAutoTuneDelta(limiter, state, delta)
		}
	}()
}

func applyAutoTuneDelta(limiter *rate.Limiter, state *autoTuneState, delta int) {
	if delta == 0 {
		return
	}
	next := clampInt(state.limit+delta, minAutoTuneLimit, state.maxLimit)
	if next == state.limit {
		return
	}
	logger.Debugf("Auto-tune: %d -> %d inspections/s", state.limit, next)
	state.limit = next
	limiter.SetLimit(rate.Limit(next))
	limiter.SetBurst(next)
}

// computeAutoTuneDelta returns the change to the per-second limit. The limit
// is never raised while the limiter is not the bottleneck: when the work
// queue is full, or when measured throughput uses under half the limit.
func computeAutoTuneDelta(targetCPU float64, interval time.Duration, state *autoTuneState, cpuSample float64, telemetry autoTuneTelemetry) int {
	const (
		ewmaAlpha = 0.30
		deadband  = 2.0
		scale     = 170.0
	)
	state.cpuEWMA = ewma(state.cpuEWMA, cpuSample, ewmaAlpha)

	dt := interval.Seconds()
	if dt <= 0 {
		dt = 1
	}
	cpuError := targetCPU - state.cpuEWMA
	if math.Abs(cpuError) <= deadband {
		state.cpuPID.integral *= 0.85
		return 0
	}
	control := state.cpuPID.Update(cpuError, dt)

	// Dampen reactions to one-off spikes.
	noise := math.Abs(cpuSample - state.cpuEWMA)
	switch {
	case noise > 35:
		control *= 0.25
	case noise > 20:
		control *= 0.5
	}

	delta := boundedIntStep(int(math.Round(control*scale)), 250)
	full := saturated(state, telemetry, dt)
	if delta > 0 && (full || underused(state)) {
		return 0
	}
	return delta
}

func underused(state *autoTuneState) bool {
	return state.throughputEWMA > 0 && state.throughputEWMA < float64(state.limit)/2
}

func saturated(state *autoTuneState, telemetry autoTuneTelemetry, dt float64) bool {
	processed := telemetry.processed()
	delta := max(0, processed-state.lastProcessed)
	state.lastProcessed = processed
	state.throughputEWMA = ewma(state.throughputEWMA, float64(delta)/dt, 0.35)

	capacity := telemetry.capacity()
	return capacity > 0 && telemetry.pending() >= capacity
}

func currentCPUPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		logger.Debugf("Auto-tune CPU percent unavailable: %v", err)
		return 0
	}
	return percents[0]
}

type pidController struct {
	kp float64
	ki float64
	kd float64

	integral    float64
	prevError   float64
	hasPrev     bool
	minIntegral float64
	maxIntegral float64
	minOutput   float64
	maxOutput   float64
}

func newCPUPIDController() pidController {
	return pidController{
		kp:          0.07,
		ki:          0.012,
		kd:          0.03,
		minIntegral: -200,
		maxIntegral: 200,
		minOutput:   -3.5,
		maxOutput:   3.5,
	}
}

func (p *pidController) Update(err, dt float64) float64 {
	if dt <= 0 {
		dt = 1
	}
	p.integral = clampFloat(p.integral+err*dt, p.minIntegral, p.maxIntegral)

	derivative := 0.0
	if p.hasPrev {
		derivative = (err - p.prevError) / dt
	}
	p.prevError = err
	p.hasPrev = true

	return clampFloat(p.kp*err+p.ki*p.integral+p.kd*derivative, p.minOutput, p.maxOutput)
}

func ewma(current, sample, alpha float64) float64 {
	if current == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*current
}

func boundedIntStep(value, maxStep int) int {
	return clampInt(value, -maxStep, maxStep)
}

func clampInt(value, lo, hi int) int {
	return min(max(value, lo), hi)
}

func clampFloat(value, lo, hi float64) float64 {
	return min(max(value, lo), hi)
}
