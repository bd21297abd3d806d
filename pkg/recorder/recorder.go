// Package recorder captures one audio clip per in-flight agent response and
// stops on a tail-silence heuristic.
//
// A Recorder's lifetime is 1:1 with a response id: it is created when the
// response starts, fed PCM frames tapped off the remote track, and stops
// itself once sustained quiet follows detected voice activity or a hard
// time cap is reached. The finished clip is written to a clip cache keyed
// by message id.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/lingopod/lingopod/pkg/clipcache"
)

// Tail-silence defaults. Tuning values, not invariants.
const (
	DefaultArmThreshold = 0.01
	DefaultMinActive    = 900 * time.Millisecond
	DefaultQuiet        = 900 * time.Millisecond
	DefaultMax          = 20 * time.Second
	DefaultPoll         = 100 * time.Millisecond
)

// Config controls one Recorder.
type Config struct {
	// Cache receives the finished clip. Required.
	Cache clipcache.Store

	// SampleRate and Channels describe the incoming PCM frames.
	// Defaults: 48000 Hz mono.
	SampleRate int
	Channels   int

	// TargetRate, when nonzero and different from SampleRate, resamples
	// the finished clip before it is stored.
	TargetRate int

	// ArmThreshold is the normalized RMS level above which a frame counts
	// as voice. Default DefaultArmThreshold.
	ArmThreshold float64

	// MinActive, Quiet, Max and Poll tune the stop heuristic. Defaults
	// are the package constants.
	MinActive time.Duration
	Quiet     time.Duration
	Max       time.Duration
	Poll      time.Duration

	// OnClip, if set, is called after the clip is stored.
	OnClip func(messageID string)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.SampleRate == 0 {
		out.SampleRate = 48000
	}
	if out.Channels == 0 {
		out.Channels = 1
	}
	if out.ArmThreshold == 0 {
		out.ArmThreshold = DefaultArmThreshold
	}
	if out.MinActive == 0 {
		out.MinActive = DefaultMinActive
	}
	if out.Quiet == 0 {
		out.Quiet = DefaultQuiet
	}
	if out.Max == 0 {
		out.Max = DefaultMax
	}
	if out.Poll == 0 {
		out.Poll = DefaultPoll
	}
	return out
}

// tracker is the pure tail-silence state. It observes per-frame loudness
// and decides when recording should stop, with no clock of its own.
//
// The quiet-tail rule arms only after a continuous loud run of at least
// minActive; a quiet observation resets the run. A short blip of noise
// therefore never arms, and such a recording runs until the hard cap.
type tracker struct {
	minActive time.Duration
	quiet     time.Duration
	max       time.Duration

	start    time.Time
	runStart time.Time
	armed    bool
	lastLoud time.Time
}

func (t *tracker) observe(now time.Time, loud bool) {
	if !loud {
		t.runStart = time.Time{}
		return
	}
	if t.runStart.IsZero() {
		t.runStart = now
	}
	if now.Sub(t.runStart) >= t.minActive {
		t.armed = true
	}
	t.lastLoud = now
}

// shouldStop reports whether recording should end at now. The hard cap
// applies even under continuous loud audio.
func (t *tracker) shouldStop(now time.Time) bool {
	if now.Sub(t.start) >= t.max {
		return true
	}
	return t.armed && now.Sub(t.lastLoud) >= t.quiet
}

// Recorder captures PCM frames for one response.
type Recorder struct {
	cfg        Config
	messageID  string
	responseID string

	mu     sync.Mutex
	chunks [][]byte
	bytes  int
	trk    tracker
	ended  bool

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start creates a Recorder for a response and begins the stop-heuristic
// poll loop. The finished clip is keyed by messageID.
func Start(messageID, responseID string, cfg Config) *Recorder {
	r := &Recorder{
		cfg:        cfg.withDefaults(),
		messageID:  messageID,
		responseID: responseID,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.trk = tracker{
		minActive: r.cfg.MinActive,
		quiet:     r.cfg.Quiet,
		max:       r.cfg.Max,
		start:     time.Now(),
	}
	go r.poll()
	return r
}

// WritePCM appends one frame of little-endian signed 16-bit PCM. Frames
// arriving after the recorder stopped are dropped.
func (r *Recorder) WritePCM(frame []byte) {
	if len(frame) == 0 {
		return
	}
	loud := rms(frame) >= r.cfg.ArmThreshold
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	r.chunks = append(r.chunks, cp)
	r.bytes += len(cp)
	r.trk.observe(now, loud)
}

// Done is closed once the clip has been finalized or the recorder aborted.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Close stops the recorder immediately and stores whatever was captured.
func (r *Recorder) Close() {
	r.finish(true)
}

// Abort stops the recorder and discards the captured audio.
func (r *Recorder) Abort() {
	r.finish(false)
}

func (r *Recorder) poll() {
	ticker := time.NewTicker(r.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			stop := r.trk.shouldStop(now)
			r.mu.Unlock()
			if stop {
				r.finish(true)
				return
			}
		}
	}
}

func (r *Recorder) finish(store bool) {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		r.ended = true
		chunks := r.chunks
		total := r.bytes
		r.chunks = nil
		r.mu.Unlock()

		defer close(r.done)
		if !store || total == 0 {
			return
		}

		data := make([]byte, 0, total)
		for _, c := range chunks {
			data = append(data, c...)
		}

		rate := r.cfg.SampleRate
		if r.cfg.TargetRate != 0 && r.cfg.TargetRate != rate {
			out, err := resamplePCM(data, rate, r.cfg.TargetRate, r.cfg.Channels)
			if err != nil {
				slog.Warn("recorder: resample failed, storing at source rate",
					"message_id", r.messageID, "error", err)
			} else {
				data = out
				rate = r.cfg.TargetRate
			}
		}

		meta := clipcache.Meta{
			MIMEType:   "audio/pcm",
			SampleRate: rate,
			Channels:   r.cfg.Channels,
			DurationMs: int64(len(data)) * 1000 / int64(rate*r.cfg.Channels*2),
			ResponseID: r.responseID,
		}
		if err := r.cfg.Cache.Put(context.Background(), r.messageID, data, meta); err != nil {
			// Replay degrades to unavailable; the session continues.
			slog.Warn("recorder: clip store failed",
				"message_id", r.messageID, "bytes", len(data), "error", err)
			return
		}
		if r.cfg.OnClip != nil {
			r.cfg.OnClip(r.messageID)
		}
	})
}

// resamplePCM converts little-endian signed 16-bit PCM between sample
// rates, interleaved by channel count.
func resamplePCM(data []byte, srcRate, dstRate, channels int) ([]byte, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("recorder: create resampler: %w", err)
	}

	n := len(data) / 2
	input := make([]float64, n)
	for i := 0; i < n; i++ {
		input[i] = float64(int16(data[i*2])|int16(data[i*2+1])<<8) / 32768.0
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("recorder: resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}
