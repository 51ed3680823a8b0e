package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"njoy-gate/config"
	"njoy-gate/internal/auth"
	"njoy-gate/internal/codec"
	"njoy-gate/internal/scanner"
	"njoy-gate/models"
	"njoy-gate/monitoring"
	"njoy-gate/utils"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateScanning
	StateSubmitting
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateSubmitting:
		return "submitting"
	default:
		return "stopped"
	}
}

var ErrSessionNotIdle = errors.New("scan session: already started")

// Validator classifies one scanned code.
type Validator interface {
	Validate(ctx context.Context, code string) models.ScanOutcome
}

// SessionEvents is the login/logout observable a session listens to.
type SessionEvents interface {
	Subscribe(fn func(auth.Event)) (unsubscribe func())
}

type ScanSessionOptions struct {
	// Guard is config.GuardTolerant or config.GuardSingleFlight.
	Guard   string
	GateID  string
	Overlay *Overlay
	Monitor *monitoring.Monitor
	// Events, when set, stops the session on logout.
	Events SessionEvents
}

// ScanSession drives a capture device through the gate workflow: decode
// frames, submit codes, show and log every outcome.
//
// With the tolerant guard a code decoded while another validation is in
// flight is submitted too, so one ticket held in front of the camera can be
// sent more than once; the server is what keeps consumption at most once.
// The single-flight guard drops decodes while a validation is outstanding.
type ScanSession struct {
	id        string
	source    scanner.FrameSource
	decoder   scanner.Decoder
	validator Validator
	log       *ScanLog
	overlay   *Overlay
	monitor   *monitoring.Monitor
	guard     string
	gateID    string
	events    SessionEvents

	mu          sync.Mutex
	state       SessionState
	inFlight    int
	lastSeq     uint64
	cancel      context.CancelFunc
	loopDone    chan struct{}
	unsubscribe func()
	pending     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

func NewScanSession(source scanner.FrameSource, decoder scanner.Decoder, validator Validator, scanLog *ScanLog, opts ScanSessionOptions) *ScanSession {
	guard := opts.Guard
	if guard != config.GuardSingleFlight {
		guard = config.GuardTolerant
	}
	return &ScanSession{
		id:        utils.SessionID(opts.GateID),
		source:    source,
		decoder:   decoder,
		validator: validator,
		log:       scanLog,
		overlay:   opts.Overlay,
		monitor:   opts.Monitor,
		guard:     guard,
		gateID:    opts.GateID,
		events:    opts.Events,
		state:     StateIdle,
		loopDone:  make(chan struct{}),
	}
}

func (s *ScanSession) ID() string { return s.id }

func (s *ScanSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ScanSession) Log() *ScanLog { return s.log }

func (s *ScanSession) Overlay() *Overlay { return s.overlay }

// Dismiss hides the current outcome. Pending validations are unaffected.
func (s *ScanSession) Dismiss() {
	if s.overlay != nil {
		s.overlay.Dismiss()
	}
}

// Start acquires the capture device and begins scanning. Validations run
// under ctx; Stop does not cancel them.
func (s *ScanSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("ScanSession.Start: %w (state %s)", ErrSessionNotIdle, s.state)
	}

	frames, err := s.source.Start(ctx)
	if err != nil {
		return fmt.Errorf("ScanSession.Start: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateScanning
	if s.events != nil {
		s.unsubscribe = s.events.Subscribe(func(ev auth.Event) {
			if ev.Kind == auth.LoggedOut {
				log.WithField("session", s.id).Info("Logged out, stopping scan session")
				s.Stop()
			}
		})
	}

	go s.loop(loopCtx, ctx, frames)

	log.WithFields(log.Fields{"session": s.id, "guard": s.guard}).Info("Scan session started")
	return nil
}

// Done is closed once the session no longer reads frames, either because it
// was stopped or because the source ran dry.
func (s *ScanSession) Done() <-chan struct{} { return s.loopDone }

// Wait blocks until every submitted validation has been recorded.
func (s *ScanSession) Wait() { s.pending.Wait() }

// Stop releases the capture device before returning. Concurrent callers
// all return once the device is released. In-flight validations keep
// running and are still logged, but no longer shown.
func (s *ScanSession) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.release() })
	return s.stopErr
}

func (s *ScanSession) release() error {
	s.mu.Lock()
	started := s.state != StateIdle
	s.state = StateStopped
	cancel, unsubscribe := s.cancel, s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if s.overlay != nil {
		s.overlay.Close()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if !started {
		close(s.loopDone)
		return nil
	}

	cancel()
	err := s.source.Stop()
	<-s.loopDone

	log.WithField("session", s.id).Info("Scan session stopped")
	if err != nil {
		return fmt.Errorf("ScanSession.Stop: %w", err)
	}
	return nil
}

func (s *ScanSession) loop(loopCtx, workCtx context.Context, frames <-chan scanner.Frame) {
	defer close(s.loopDone)
	for {
		select {
		case <-loopCtx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(workCtx, f)
		}
	}
}

func (s *ScanSession) handleFrame(ctx context.Context, f scanner.Frame) {
	raw, err := s.decoder.Decode(f)
	if err != nil {
		// bad frames are routine while the camera runs
		log.WithError(err).WithField("seq", f.Seq).Trace("Frame not decoded")
		s.monitor.TrackDroppedFrame("undecodable")
		return
	}

	s.mu.Lock()
	switch {
	case s.state == StateStopped:
		s.mu.Unlock()
		return
	case f.Seq != 0 && f.Seq <= s.lastSeq:
		s.mu.Unlock()
		s.monitor.TrackDroppedFrame("duplicate")
		return
	}
	if f.Seq != 0 {
		s.lastSeq = f.Seq
	}
	if s.guard == config.GuardSingleFlight && s.inFlight > 0 {
		s.mu.Unlock()
		log.WithField("seq", f.Seq).Debug("Validation in flight, dropping decode")
		s.monitor.TrackDroppedFrame("in_flight")
		return
	}
	s.inFlight++
	s.state = StateSubmitting
	s.pending.Add(1)
	s.mu.Unlock()

	s.monitor.ScanStarted()
	go s.submit(ctx, raw)
}

func (s *ScanSession) submit(ctx context.Context, raw string) {
	defer s.pending.Done()

	code := codec.DecodePayload(raw)
	out := s.validator.Validate(ctx, code)
	if out.Code == "" {
		out.Code = raw
	}
	s.monitor.ScanFinished()

	s.mu.Lock()
	s.inFlight--
	if s.inFlight == 0 && s.state == StateSubmitting {
		s.state = StateScanning
	}
	stopped := s.state == StateStopped
	s.mu.Unlock()

	if !stopped && s.overlay != nil {
		s.overlay.Show(out)
	}
	s.log.Append(models.NewScanLogEntry(out, s.gateID))
}
