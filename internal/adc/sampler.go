package adc

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Converter performs one analog conversion and returns the raw 10-bit
// two's complement result.
type Converter interface {
	Convert() (uint16, error)
}

// Sampler is the interrupt context on a host without real timer
// interrupts: a goroutine paced by the sampling period that runs the
// engine's handlers.
type Sampler struct {
	engine *Engine
	conv   Converter
	period time.Duration
	wake   func()
}

// NewSampler creates a sampler driving engine from conv at the timer's
// period. wake is called after every handler that may concern the
// foreground; it must not block.
func NewSampler(engine *Engine, conv Converter, timer TimerConfig, wake func()) *Sampler {
	return &Sampler{
		engine: engine,
		conv:   conv,
		period: timer.Period(),
		wake:   wake,
	}
}

// Run services timer ticks until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Burst()
		}
	}
}

// Burst handles one timer period: the tick, then conversions until the
// engine closes the front end.
func (s *Sampler) Burst() {
	if !s.engine.Running() {
		return
	}

	s.engine.Tick()
	s.wake()

	for n := 0; n < Oversampling && s.engine.Converting(); n++ {
		raw, err := s.conv.Convert()
		if err != nil {
			log.Error("conversion failed, dropping burst", "err", err)
			s.engine.Abort()
			return
		}
		if s.engine.Complete(raw) {
			s.wake()
		}
	}
}
