package speech

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultLocale is used when the client supplies no locale or the platform
// rejects the requested one.
const DefaultLocale = "en-IN"

// Recognition error codes reported by the platform stream.
const (
	ErrCodeNoSpeech     = "no-speech"
	ErrCodeAborted      = "aborted"
	ErrCodeNotAllowed   = "not-allowed"
	ErrCodeAudioCapture = "audio-capture"
)

// ErrNotSupported is returned by a RecognizerFactory when the platform offers
// no speech-recognition capability.
var ErrNotSupported = errors.New("speech recognition is not supported")

// State of a capture session.
type State int

const (
	Idle State = iota
	Listening
)

// Recognizer is the underlying platform capture resource. Start and Stop
// control the continuous, interim-enabled stream; events flow back into the
// session through HandleResult, HandleError and HandleEnd.
type Recognizer interface {
	Start() error
	Stop()
}

// RecognizerFactory opens a recognition stream tagged with a locale.
type RecognizerFactory func(locale string) (Recognizer, error)

// Fragment is one piece of an incremental recognition result. Final
// fragments are committed to the transcript; interim ones are display-only
// and replaced by the next event.
type Fragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Session turns a live recognition stream into accumulating text. It owns
// the restart-on-unexpected-end behavior and error classification. Only one
// stream is open at a time: Start is a no-op while listening, which gives
// mutual exclusion at the session level without callers taking locks.
type Session struct {
	mu      sync.Mutex
	factory RecognizerFactory
	rec     Recognizer
	state   State

	finalized string
	interim   string
	errMsg    string

	// Set by Stop so a platform end event arriving afterwards does not
	// resurrect the stream.
	stoppedIntentionally bool

	closed  bool
	updates chan string
}

// NewSession creates an idle capture session backed by the given factory.
func NewSession(factory RecognizerFactory) *Session {
	return &Session{
		factory: factory,
		updates: make(chan string, 16),
	}
}

// Start opens the recognition stream. When resume is false the transcript
// buffers are cleared first. A platform without recognition support records
// an error on the session instead of failing hard. Calling Start while
// already listening is a no-op.
func (s *Session) Start(resume bool, locale string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Listening || s.rec != nil {
		return
	}
	s.stoppedIntentionally = false
	s.errMsg = ""

	if locale == "" {
		locale = DefaultLocale
	}

	rec, err := s.factory(locale)
	if err != nil {
		slog.Warn("Speech capture unavailable", "error", err, "locale", locale)
		s.errMsg = "Speech recognition is not supported on this platform."
		return
	}

	if !resume {
		s.finalized = ""
		s.interim = ""
		s.notifyLocked()
	}

	s.rec = rec
	if err := rec.Start(); err != nil {
		slog.Error("Failed to start speech capture", "error", err, "locale", locale)
		s.errMsg = "An unexpected error occurred with speech recognition."
		s.rec = nil
		return
	}
	s.state = Listening
	slog.Info("Speech capture started", "locale", locale, "resume", resume)
}

// Stop halts the stream and marks the stop as intentional so the trailing
// end event does not trigger a restart. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.rec == nil && s.state == Idle {
		return
	}
	s.stoppedIntentionally = true
	if s.rec != nil {
		s.rec.Stop()
		s.rec = nil
	}
	s.state = Idle
	slog.Info("Speech capture stopped")
}

// Reset clears the transcript buffers without touching the listening state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = ""
	s.interim = ""
	s.notifyLocked()
}

// Close releases the session: a still-listening stream is stopped so no
// capture dangles after the owner goes away, and the updates channel is
// closed so subscribers drain and exit.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}

// Text is the observable transcript: committed text plus the current interim
// fragment, trimmed.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.finalized + s.interim)
}

// Err returns the last classified error message, if any.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Listening reports whether a stream is open.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Listening
}

// Updates delivers the observable text after every change. Sends are
// non-blocking; a slow consumer only misses intermediate states.
func (s *Session) Updates() <-chan string {
	return s.updates
}

// HandleResult processes one incremental recognition event. Final fragments
// are trimmed and space-joined onto the committed transcript; interim
// fragments replace the previous interim text. Events arriving after Stop
// are dropped, matching detached platform handlers.
func (s *Session) HandleResult(fragments []Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Listening {
		return
	}

	interim := ""
	for _, f := range fragments {
		if f.Final {
			s.finalized += strings.TrimSpace(f.Text) + " "
		} else {
			interim += f.Text
		}
	}
	s.interim = interim
	s.notifyLocked()
}

// HandleEnd processes a platform-initiated end of stream. Unless the stop
// was intentional, the same stream is restarted with the committed
// transcript preserved, masking platform auto-timeouts. A failed restart
// degrades to Stop semantics.
func (s *Session) HandleEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stoppedIntentionally || s.rec == nil {
		return
	}
	if err := s.rec.Start(); err != nil {
		slog.Warn("Speech capture restart failed", "error", err)
		s.stopLocked()
		return
	}
	slog.Info("Speech capture restarted after platform end")
}

// HandleError classifies a platform error code. no-speech and aborted are
// benign and ignored; permission and device errors get distinct messages;
// everything else gets a generic one. Any reported error forces a stop.
func (s *Session) HandleError(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code == ErrCodeNoSpeech || code == ErrCodeAborted {
		return
	}

	switch code {
	case ErrCodeNotAllowed:
		s.errMsg = "Microphone access is blocked. Please enable the microphone for this site."
	case ErrCodeAudioCapture:
		s.errMsg = "Microphone not found. Please check your device and permissions."
	default:
		s.errMsg = fmt.Sprintf("Speech recognition error: %s", code)
	}
	slog.Warn("Speech capture error", "code", code, "message", s.errMsg)
	s.stopLocked()
}

func (s *Session) notifyLocked() {
	if s.closed {
		return
	}
	text := strings.TrimSpace(s.finalized + s.interim)
	select {
	case s.updates <- text:
	default:
	}
}
