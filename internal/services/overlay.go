package services

import (
	"sync"
	"time"

	"njoy-gate/models"
)

const DefaultOverlayWindow = 5 * time.Second

// OverlayRenderer draws the full-attention result panel.
type OverlayRenderer interface {
	Show(o models.ScanOutcome)
	Hide()
}

// Overlay shows one outcome at a time. A newer outcome replaces the shown
// one and restarts the window. Dismissing only hides the panel.
type Overlay struct {
	mu       sync.Mutex
	window   time.Duration
	renderer OverlayRenderer

	current *models.ScanOutcome
	timer   *time.Timer
	gen     uint64
	closed  bool
}

func NewOverlay(window time.Duration, renderer OverlayRenderer) *Overlay {
	if window <= 0 {
		window = DefaultOverlayWindow
	}
	return &Overlay{window: window, renderer: renderer}
}

// Show displays outcome. It does nothing once the overlay is closed.
func (o *Overlay) Show(outcome models.ScanOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	if o.timer != nil {
		o.timer.Stop()
	}
	o.gen++
	gen := o.gen
	o.current = &outcome
	if o.renderer != nil {
		o.renderer.Show(outcome)
	}
	o.timer = time.AfterFunc(o.window, func() { o.expire(gen) })
}

func (o *Overlay) expire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.current == nil {
		return
	}
	o.hideLocked()
}

// Dismiss hides the current outcome, if any.
func (o *Overlay) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.hideLocked()
}

func (o *Overlay) hideLocked() {
	o.current = nil
	o.gen++
	if o.renderer != nil {
		o.renderer.Hide()
	}
}

// Current returns the outcome on screen.
func (o *Overlay) Current() (models.ScanOutcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return models.ScanOutcome{}, false
	}
	return *o.current, true
}

// Close stops the dismissal timer without calling the renderer. Later
// outcomes are not shown.
func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
	o.current = nil
	o.gen++
}
