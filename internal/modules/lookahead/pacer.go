package lookahead

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// DefaultPacingDelay is the sleep inserted between eager integration steps.
const DefaultPacingDelay = time.Millisecond

// cpuSampleInterval bounds how often the guard queries host CPU load.
const cpuSampleInterval = time.Second

// Pacer spreads eager lookahead work over wall-clock time. When a CPU guard
// threshold is set and host load exceeds it, the delay is doubled.
// Pacing only affects timing, never results.
type Pacer struct {
	delay     time.Duration
	threshold float64

	sleep  func(time.Duration)
	now    func() time.Time
	sample func() (float64, error)
	log    zerolog.Logger

	lastSample time.Time
	loaded     bool
}

// NewPacer returns a pacer sleeping delay between steps. threshold is a CPU
// percentage; zero or less disables the guard.
func NewPacer(delay time.Duration, threshold float64, log zerolog.Logger) *Pacer {
	if delay < 0 {
		delay = 0
	}
	return &Pacer{
		delay:     delay,
		threshold: threshold,
		sleep:     time.Sleep,
		now:       time.Now,
		sample:    hostCPUPercent,
		log:       log,
	}
}

// hostCPUPercent returns CPU use since the previous call, averaged across
// all cores. It does not block.
func hostCPUPercent() (float64, error) {
	percent, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percent) == 0 {
		return 0, nil
	}
	return percent[0], nil
}

// Delay returns the configured base delay.
func (p *Pacer) Delay() time.Duration { return p.delay }

// SetDelay changes the base delay. Negative values mean no pacing.
func (p *Pacer) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.delay = d
}

// Current returns the delay the next Wait will sleep for.
func (p *Pacer) Current() time.Duration {
	if p.delay == 0 {
		return 0
	}
	if p.threshold > 0 {
		p.refreshLoad()
		if p.loaded {
			return 2 * p.delay
		}
	}
	return p.delay
}

// Wait sleeps for the current delay.
func (p *Pacer) Wait() {
	if d := p.Current(); d > 0 {
		p.sleep(d)
	}
}

func (p *Pacer) refreshLoad() {
	now := p.now()
	if !p.lastSample.IsZero() && now.Sub(p.lastSample) < cpuSampleInterval {
		return
	}
	p.lastSample = now

	load, err := p.sample()
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		p.loaded = false
		return
	}
	if loaded := load > p.threshold; loaded != p.loaded {
		p.log.Debug().Float64("cpu_percent", load).Bool("throttled", loaded).Msg("Pacing changed")
		p.loaded = loaded
	}
}
