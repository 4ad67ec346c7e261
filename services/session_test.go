package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepvox/backend/models"
	"github.com/prepvox/backend/speech"
)

type savedAnswer struct {
	index  int
	answer string
}

// fakeSessionStore records persistence calls and can be made to fail.
type fakeSessionStore struct {
	saved       []savedAnswer
	saveErr     error
	completeErr error
	completed   int
}

func (f *fakeSessionStore) SaveAnswer(ctx context.Context, id, userID string, questionIndex int, answer string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, savedAnswer{index: questionIndex, answer: answer})
	return nil
}

func (f *fakeSessionStore) CompleteWithFeedback(ctx context.Context, id, userID string) (*models.PlainInterview, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completed++
	return &models.PlainInterview{
		ID:     id,
		UserID: userID,
		Status: models.StatusCompleted,
		Feedback: &models.Feedback{
			OverallScore: 7,
			Strengths:    "Concise answers.",
		},
	}, nil
}

type nopRecognizer struct{}

func (nopRecognizer) Start() error { return nil }
func (nopRecognizer) Stop()        {}

func newLiveSessionFixture(t *testing.T, questions []string) (*LiveSession, *fakeSessionStore) {
	t.Helper()
	store := &fakeSessionStore{}
	capture := speech.NewSession(func(string) (speech.Recognizer, error) {
		return nopRecognizer{}, nil
	})
	interview := &models.PlainInterview{
		ID:        "iv-1",
		UserID:    "user-1",
		Questions: questions,
		Status:    models.StatusPending,
	}
	return NewLiveSession(store, capture, interview), store
}

func speak(ls *LiveSession, text string) {
	ls.Capture().Start(false, "")
	ls.Capture().HandleResult([]speech.Fragment{{Text: text, Final: true}})
}

func TestSubmitRejectsShortAnswer(t *testing.T) {
	ls, store := newLiveSessionFixture(t, []string{"Q1", "Q2"})
	speak(ls, "hi")

	err := ls.Submit(context.Background())

	assert.ErrorIs(t, err, ErrAnswerTooShort)
	assert.Empty(t, store.saved, "nothing may be persisted for a rejected answer")
	assert.Equal(t, StateAnswering, ls.State())
}

func TestSubmitAdvancesToNextQuestion(t *testing.T) {
	ls, store := newLiveSessionFixture(t, []string{"Q1", "Q2"})
	speak(ls, "my first answer")

	require.NoError(t, ls.Submit(context.Background()))

	require.Len(t, store.saved, 1)
	assert.Equal(t, savedAnswer{index: 0, answer: "my first answer"}, store.saved[0])

	index, question := ls.CurrentQuestion()
	assert.Equal(t, 1, index)
	assert.Equal(t, "Q2", question)
	assert.Equal(t, StateAnswering, ls.State())
	assert.Equal(t, "", ls.Capture().Text(), "transcript must be cleared for the next question")
	assert.Zero(t, store.completed)
}

func TestSubmitLastQuestionCompletes(t *testing.T) {
	ls, store := newLiveSessionFixture(t, []string{"only question"})
	speak(ls, "a full answer to the only question")

	require.NoError(t, ls.Submit(context.Background()))

	assert.Equal(t, StateCompleted, ls.State())
	assert.Equal(t, 1, store.completed)
	assert.Equal(t, "", ls.Capture().Text(), "the submitted transcript must not linger after completion")
	require.NotNil(t, ls.Result())
	assert.Equal(t, models.StatusCompleted, ls.Result().Status)
}

func TestSubmitAfterCompletion(t *testing.T) {
	ls, _ := newLiveSessionFixture(t, []string{"only question"})
	speak(ls, "a full answer to the only question")
	require.NoError(t, ls.Submit(context.Background()))

	err := ls.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestSaveFailureKeepsSessionAnswering(t *testing.T) {
	ls, store := newLiveSessionFixture(t, []string{"Q1", "Q2"})
	store.saveErr = errors.New("db down")
	speak(ls, "a perfectly fine answer")

	err := ls.Submit(context.Background())

	assert.Error(t, err)
	assert.Equal(t, StateAnswering, ls.State())
	index, _ := ls.CurrentQuestion()
	assert.Equal(t, 0, index, "a failed save must not advance the question")
}

func TestFinishFailureIsRetryable(t *testing.T) {
	ls, store := newLiveSessionFixture(t, []string{"only question"})
	store.completeErr = errors.New("generation unavailable")
	speak(ls, "a full answer to the only question")

	err := ls.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFinishFailed, ls.State())
	require.Len(t, store.saved, 1, "the answer stays saved across a failed finish")

	store.completeErr = nil
	require.NoError(t, ls.RetryFinish(context.Background()))

	assert.Equal(t, StateCompleted, ls.State())
	assert.Len(t, store.saved, 1, "retry must not re-save the answer")
	assert.Equal(t, 1, store.completed)
}

func TestRetryFinishOutsideFailureState(t *testing.T) {
	ls, _ := newLiveSessionFixture(t, []string{"Q1", "Q2"})

	err := ls.RetryFinish(context.Background())
	assert.ErrorIs(t, err, ErrNotFinishFailed)
}

func TestHasUnsavedAnswer(t *testing.T) {
	ls, _ := newLiveSessionFixture(t, []string{"Q1", "Q2"})
	assert.False(t, ls.HasUnsavedAnswer())

	speak(ls, "something in flight")
	assert.True(t, ls.HasUnsavedAnswer())

	require.NoError(t, ls.Submit(context.Background()))
	assert.False(t, ls.HasUnsavedAnswer(), "a submitted answer is no longer unsaved")
}

func TestResumeLandsOnFirstUnansweredQuestion(t *testing.T) {
	store := &fakeSessionStore{}
	capture := speech.NewSession(func(string) (speech.Recognizer, error) {
		return nopRecognizer{}, nil
	})
	interview := &models.PlainInterview{
		ID:        "iv-1",
		UserID:    "user-1",
		Questions: []string{"Q1", "Q2", "Q3"},
		Answers: []models.Answer{
			{QuestionIndex: 0, Answer: "done"},
			{QuestionIndex: 1, Answer: "also done"},
		},
		Status: models.StatusInProgress,
	}

	ls := NewLiveSession(store, capture, interview)

	index, question := ls.CurrentQuestion()
	assert.Equal(t, 2, index)
	assert.Equal(t, "Q3", question)
	assert.True(t, ls.IsLastQuestion())
}
