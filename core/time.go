// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	eventDelay := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if eventDelay <= 0 {
		eventDelay = interval
	}

	now := time.Now()
	return &Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: cfg.EventPollDelay,
		eventTicker:    time.NewTicker(eventDelay),
		start:          now,
		last:           now,
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker

	start     time.Time
	last      time.Time
	frameTime time.Duration
	frames    uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Tick marks the start of a new frame and records the time
// elapsed since the previous one.
func (t *Time) Tick(now time.Time) {
	t.frameTime = now.Sub(t.last)
	t.last = now
	t.frames++
}

// FrameTime is the duration of the last frame
func (t *Time) FrameTime() time.Duration {
	return t.frameTime
}

// Frames is the number of ticks since creation
func (t *Time) Frames() uint64 {
	return t.frames
}

// Elapsed is the time since the service was created
func (t *Time) Elapsed() time.Duration {
	return t.last.Sub(t.start)
}

// Stop releases the tickers
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}
