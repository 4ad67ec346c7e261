package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prepvox/backend/models"
	"github.com/prepvox/backend/repository"
)

type fakeQuestionGen struct {
	questions []string
	err       error
	calls     int
}

func (f *fakeQuestionGen) GenerateQuestions(ctx context.Context, jobRole, experienceLevel string, keywords []string) ([]string, error) {
	f.calls++
	return f.questions, f.err
}

type fakeFeedbackGen struct {
	feedback       *models.Feedback
	err            error
	lastTranscript string
	lastQuestions  string
}

func (f *fakeFeedbackGen) GenerateFeedback(ctx context.Context, jobRole, questions, transcript string) (*models.Feedback, error) {
	f.lastQuestions = questions
	f.lastTranscript = transcript
	return f.feedback, f.err
}

func sevenQuestions() []string {
	qs := make([]string, 7)
	for i := range qs {
		qs[i] = fmt.Sprintf("Question number %d?", i+1)
	}
	return qs
}

func newServiceFixture(t *testing.T) (*InterviewService, *fakeQuestionGen, *fakeFeedbackGen, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := repository.NewGORMRepository(db)
	require.NoError(t, repo.AutoMigrate())

	user := &models.User{Email: t.Name() + "@example.com", Password: "hashed"}
	require.NoError(t, repo.CreateUser(context.Background(), user))

	questions := &fakeQuestionGen{questions: sevenQuestions()}
	feedback := &fakeFeedbackGen{feedback: &models.Feedback{
		OverallScore:       7.5,
		Strengths:          "Good fundamentals.",
		AreasOfImprovement: "Quantify impact.",
	}}

	return NewInterviewService(repo, questions, feedback), questions, feedback, user.ID
}

func TestCreateInterview(t *testing.T) {
	svc, gen, _, userID := newServiceFixture(t)

	interview, err := svc.Create(context.Background(), userID, CreateInterviewInput{
		Role:                   "  Backend Engineer  ",
		ExperienceLevel:        models.LevelMidLevel,
		JobDescriptionKeywords: "go, kubernetes",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "Backend Engineer", interview.Role)
	assert.Equal(t, models.StatusPending, interview.Status)
	assert.Len(t, interview.Questions, 7)
	assert.Empty(t, interview.Answers)
	assert.Nil(t, interview.Feedback)
	assert.NotNil(t, interview.CreatedAt)
	assert.Nil(t, interview.CompletedAt)
}

func TestCreateInterviewValidation(t *testing.T) {
	svc, gen, _, userID := newServiceFixture(t)

	_, err := svc.Create(context.Background(), userID, CreateInterviewInput{
		Role: "", ExperienceLevel: models.LevelFresher,
	})
	assert.Error(t, err)

	_, err = svc.Create(context.Background(), userID, CreateInterviewInput{
		Role: "Engineer", ExperienceLevel: "Principal",
	})
	assert.Error(t, err)

	assert.Zero(t, gen.calls, "validation failures must not reach the generator")
}

func TestCreateInterviewGenerationFailure(t *testing.T) {
	svc, gen, _, userID := newServiceFixture(t)
	gen.err = errors.New("quota exceeded")

	_, err := svc.Create(context.Background(), userID, CreateInterviewInput{
		Role: "Engineer", ExperienceLevel: models.LevelSenior,
	})
	assert.ErrorIs(t, err, ErrQuestionGeneration)

	interviews, err := svc.List(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, interviews, "a failed generation must leave no record")
}

func TestGetByIDOwnership(t *testing.T) {
	svc, _, _, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)

	got, err := svc.GetByID(context.Background(), interview.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, interview.ID, got.ID)

	_, err = svc.GetByID(context.Background(), interview.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotOwner)

	got, err = svc.GetByID(context.Background(), "missing-id", userID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveAnswerAndStatus(t *testing.T) {
	svc, _, _, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)

	require.NoError(t, svc.SaveAnswer(context.Background(), interview.ID, userID, 0, "first take"))
	require.NoError(t, svc.SaveAnswer(context.Background(), interview.ID, userID, 0, "second take"))
	require.NoError(t, svc.SaveAnswer(context.Background(), interview.ID, userID, 3, "answer four"))

	got, err := svc.GetByID(context.Background(), interview.ID, userID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, got.Status)
	require.Len(t, got.Answers, 2, "re-answering must replace, not append")

	first, ok := got.AnswerFor(0)
	require.True(t, ok)
	assert.Equal(t, "second take", first.Answer)

	fourth, ok := got.AnswerFor(3)
	require.True(t, ok)
	assert.Equal(t, "answer four", fourth.Answer)

	_, ok = got.AnswerFor(1)
	assert.False(t, ok)
}

func TestSaveAnswerBounds(t *testing.T) {
	svc, _, _, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)

	err := svc.SaveAnswer(context.Background(), interview.ID, userID, 7, "off the end")
	assert.ErrorIs(t, err, repository.ErrQuestionIndexOutOfRange)

	err = svc.SaveAnswer(context.Background(), interview.ID, userID, -1, "before the start")
	assert.ErrorIs(t, err, repository.ErrQuestionIndexOutOfRange)
}

func TestCompleteWithFeedback(t *testing.T) {
	svc, _, feedback, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)

	for i := range interview.Questions {
		require.NoError(t, svc.SaveAnswer(context.Background(), interview.ID, userID, i, fmt.Sprintf("my answer to %d", i+1)))

		got, err := svc.GetByID(context.Background(), interview.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, got.Status, "status stays in-progress until completion")
	}

	got, err := svc.CompleteWithFeedback(context.Background(), interview.ID, userID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, 7.5, got.Feedback.OverallScore)
	require.NotNil(t, got.CompletedAt)

	assert.Contains(t, feedback.lastTranscript, "Question 1: Question number 1?\nAnswer: my answer to 1")
	assert.Contains(t, feedback.lastTranscript, "Question 7: Question number 7?\nAnswer: my answer to 7")
	assert.Contains(t, feedback.lastQuestions, "Question number 7?")

	_, err = svc.CompleteWithFeedback(context.Background(), interview.ID, userID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestCompleteRequiresAllAnswers(t *testing.T) {
	svc, _, _, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)

	require.NoError(t, svc.SaveAnswer(context.Background(), interview.ID, userID, 0, "only one answer"))

	_, err := svc.CompleteWithFeedback(context.Background(), interview.ID, userID)
	assert.ErrorIs(t, err, ErrIncompleteAnswers)

	got, err := svc.GetByID(context.Background(), interview.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status, "a rejected completion must not touch the record")
	assert.Nil(t, got.Feedback)
}

func TestCompleteFeedbackFailureLeavesRecordUntouched(t *testing.T) {
	svc, _, feedback, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)
	for i := range interview.Questions {
		require.NoError(t, svc.SaveAnswer(context.Background(), interview.ID, userID, i, fmt.Sprintf("answer %d", i+1)))
	}

	feedback.err = errors.New("generation down")
	_, err := svc.CompleteWithFeedback(context.Background(), interview.ID, userID)
	require.Error(t, err)

	got, err := svc.GetByID(context.Background(), interview.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Nil(t, got.Feedback)
	assert.Nil(t, got.CompletedAt)
}

func TestDeleteInterview(t *testing.T) {
	svc, _, _, userID := newServiceFixture(t)
	interview := mustCreate(t, svc, userID)

	require.Error(t, svc.Delete(context.Background(), interview.ID, "someone-else"))
	require.NoError(t, svc.Delete(context.Background(), interview.ID, userID))

	got, err := svc.GetByID(context.Background(), interview.ID, userID)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = svc.Delete(context.Background(), interview.ID, userID)
	assert.ErrorIs(t, err, repository.ErrInterviewNotFound)
}

func TestBuildTranscript(t *testing.T) {
	transcript := BuildTranscript(
		[]string{"First?", "Second?"},
		[]models.Answer{{QuestionIndex: 1, Answer: "only the second"}},
	)

	assert.Equal(t,
		"Question 1: First?\nAnswer: "+NoAnswerPlaceholder+"\n\nQuestion 2: Second?\nAnswer: only the second",
		transcript)
}

func TestSplitKeywords(t *testing.T) {
	assert.Equal(t, []string{"go", "kubernetes"}, splitKeywords(" go ,, kubernetes "))
	assert.Empty(t, splitKeywords("  "))
}

func mustCreate(t *testing.T, svc *InterviewService, userID string) *models.PlainInterview {
	t.Helper()
	interview, err := svc.Create(context.Background(), userID, CreateInterviewInput{
		Role:            "Backend Engineer",
		ExperienceLevel: models.LevelMidLevel,
	})
	require.NoError(t, err)
	return interview
}
