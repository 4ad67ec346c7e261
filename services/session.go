package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prepvox/backend/models"
	"github.com/prepvox/backend/speech"
)

// MinAnswerLength is the minimum trimmed transcript length accepted for
// submission.
const MinAnswerLength = 5

// Live session states. Submitting and Finishing are transient; Completed is
// terminal. FinishFailed keeps the session alive so feedback generation can
// be retried without losing saved answers.
type SessionState int

const (
	StateAnswering SessionState = iota
	StateSubmitting
	StateFinishing
	StateCompleted
	StateFinishFailed
)

func (s SessionState) String() string {
	switch s {
	case StateAnswering:
		return "answering"
	case StateSubmitting:
		return "submitting"
	case StateFinishing:
		return "finishing"
	case StateCompleted:
		return "completed"
	case StateFinishFailed:
		return "finish_failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

var (
	// ErrAnswerTooShort is returned by Submit before anything is persisted.
	ErrAnswerTooShort = errors.New("answer is too short to submit")

	// ErrSessionBusy is returned when an operation arrives while a submit or
	// finish is already running.
	ErrSessionBusy = errors.New("session operation already in progress")

	// ErrSessionCompleted is returned for operations on a finished session.
	ErrSessionCompleted = errors.New("interview session is completed")

	// ErrNotFinishFailed is returned by RetryFinish outside the retryable
	// failure state.
	ErrNotFinishFailed = errors.New("session has no failed finish to retry")
)

// sessionStore is the slice of InterviewService a live session needs.
type sessionStore interface {
	SaveAnswer(ctx context.Context, id, userID string, questionIndex int, answer string) error
	CompleteWithFeedback(ctx context.Context, id, userID string) (*models.PlainInterview, error)
}

// LiveSession drives one user through one interview: a fixed question list,
// a speech capture session for the current answer, and submit/finish
// transitions against the record store. It is owned by a single websocket
// connection but locks anyway since capture events arrive concurrently.
type LiveSession struct {
	mu      sync.Mutex
	store   sessionStore
	capture *speech.Session

	interviewID string
	userID      string
	questions   []string

	current int
	state   SessionState
	result  *models.PlainInterview
}

// NewLiveSession resumes or starts a session over an existing interview
// record. The current question is the first unanswered index, so a user who
// answered three questions and reconnects lands on question four.
func NewLiveSession(store sessionStore, capture *speech.Session, interview *models.PlainInterview) *LiveSession {
	current := 0
	for current < len(interview.Questions) {
		if _, ok := interview.AnswerFor(current); !ok {
			break
		}
		current++
	}
	if current >= len(interview.Questions) {
		current = len(interview.Questions) - 1
	}

	return &LiveSession{
		store:       store,
		capture:     capture,
		interviewID: interview.ID,
		userID:      interview.UserID,
		questions:   append([]string(nil), interview.Questions...),
		current:     current,
		state:       StateAnswering,
	}
}

// Capture exposes the speech session for event routing.
func (ls *LiveSession) Capture() *speech.Session {
	return ls.capture
}

// State returns the current session state.
func (ls *LiveSession) State() SessionState {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

// CurrentQuestion returns the active question index and text.
func (ls *LiveSession) CurrentQuestion() (int, string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.current, ls.questions[ls.current]
}

// IsLastQuestion reports whether the active question is the final one.
func (ls *LiveSession) IsLastQuestion() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.current == len(ls.questions)-1
}

// Result returns the completed interview record, set once the session
// reaches StateCompleted.
func (ls *LiveSession) Result() *models.PlainInterview {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.result
}

// HasUnsavedAnswer reports whether leaving now would discard captured text.
// Used for the confirm-before-leave round trip.
func (ls *LiveSession) HasUnsavedAnswer() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state == StateAnswering && strings.TrimSpace(ls.capture.Text()) != ""
}

// Submit validates and persists the current answer, then either advances to
// the next question or, on the last one, runs feedback generation and
// completes the interview. Capture is stopped before anything is persisted
// so no fragments land after the answer is taken.
func (ls *LiveSession) Submit(ctx context.Context) error {
	ls.mu.Lock()

	switch ls.state {
	case StateAnswering:
	case StateCompleted:
		ls.mu.Unlock()
		return ErrSessionCompleted
	default:
		ls.mu.Unlock()
		return ErrSessionBusy
	}

	answer := strings.TrimSpace(ls.capture.Text())
	if len(answer) < MinAnswerLength {
		ls.mu.Unlock()
		return ErrAnswerTooShort
	}

	ls.capture.Stop()
	ls.state = StateSubmitting
	index := ls.current
	last := index == len(ls.questions)-1
	ls.mu.Unlock()

	if err := ls.store.SaveAnswer(ctx, ls.interviewID, ls.userID, index, answer); err != nil {
		ls.setState(StateAnswering)
		return err
	}

	if !last {
		ls.mu.Lock()
		ls.capture.Reset()
		ls.current++
		ls.state = StateAnswering
		current := ls.current
		ls.mu.Unlock()
		slog.Info("Advanced to next question", "interview_id", ls.interviewID, "question_index", current)
		return nil
	}

	ls.mu.Lock()
	ls.capture.Reset()
	ls.state = StateFinishing
	ls.mu.Unlock()
	return ls.finish(ctx)
}

// RetryFinish re-runs feedback generation after a failed finish. Saved
// answers are untouched, so only the generation call repeats.
func (ls *LiveSession) RetryFinish(ctx context.Context) error {
	ls.mu.Lock()
	if ls.state != StateFinishFailed {
		ls.mu.Unlock()
		return ErrNotFinishFailed
	}
	ls.state = StateFinishing
	ls.mu.Unlock()

	return ls.finish(ctx)
}

func (ls *LiveSession) finish(ctx context.Context) error {
	result, err := ls.store.CompleteWithFeedback(ctx, ls.interviewID, ls.userID)
	if err != nil {
		slog.Error("Failed to finish interview session", "error", err, "interview_id", ls.interviewID)
		ls.setState(StateFinishFailed)
		return err
	}

	ls.mu.Lock()
	ls.state = StateCompleted
	ls.result = result
	ls.mu.Unlock()

	slog.Info("Interview session completed", "interview_id", ls.interviewID)
	return nil
}

// Close releases the capture resources. Safe to call in any state.
func (ls *LiveSession) Close() {
	ls.capture.Close()
}

func (ls *LiveSession) setState(state SessionState) {
	ls.mu.Lock()
	ls.state = state
	ls.mu.Unlock()
}
