package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prepvox/backend/metrics"
	"github.com/prepvox/backend/models"
	"github.com/prepvox/backend/repository"
)

const (
	// DefaultPageSize is used when a history listing does not specify one.
	DefaultPageSize = 10
	// MaxPageSize caps what a client may request per page.
	MaxPageSize = 50

	// NoAnswerPlaceholder stands in for unanswered questions in the
	// feedback transcript.
	NoAnswerPlaceholder = "No answer provided."
)

var (
	// ErrQuestionGeneration is returned when the gateway produces no usable
	// question list. Nothing is persisted in that case.
	ErrQuestionGeneration = errors.New("failed to generate interview questions")

	// ErrNotOwner is returned when a caller touches an interview that
	// belongs to someone else. Handlers report it the same as not-found so
	// record ids are not probeable.
	ErrNotOwner = errors.New("interview does not belong to user")

	// ErrAlreadyCompleted guards against re-running feedback generation on
	// a finished interview.
	ErrAlreadyCompleted = errors.New("interview already completed")

	// ErrIncompleteAnswers is returned when completion is requested before
	// every question has an answer.
	ErrIncompleteAnswers = errors.New("incomplete answers")
)

// questionGenerator and feedbackGenerator are the slices of the AI gateway
// this service needs. GeminiService satisfies both; tests substitute fakes.
type questionGenerator interface {
	GenerateQuestions(ctx context.Context, jobRole, experienceLevel string, keywords []string) ([]string, error)
}

type feedbackGenerator interface {
	GenerateFeedback(ctx context.Context, jobRole, questions, transcript string) (*models.Feedback, error)
}

// InterviewService owns the interview record lifecycle: creation with
// generated questions, answer persistence, completion with feedback, history
// listings and deletion. All reads and mutations are owner-scoped.
type InterviewService struct {
	repo      *repository.GORMRepository
	questions questionGenerator
	feedback  feedbackGenerator
}

func NewInterviewService(repo *repository.GORMRepository, questions questionGenerator, feedback feedbackGenerator) *InterviewService {
	return &InterviewService{
		repo:      repo,
		questions: questions,
		feedback:  feedback,
	}
}

// CreateInterviewInput is the setup form payload.
type CreateInterviewInput struct {
	Role                   string `json:"role"`
	ExperienceLevel        string `json:"experience_level"`
	JobDescriptionKeywords string `json:"job_description_keywords"`
}

// Create generates the question list and persists a new pending interview.
// The gateway call happens first; a generation failure leaves no record
// behind.
func (s *InterviewService) Create(ctx context.Context, userID string, input CreateInterviewInput) (*models.PlainInterview, error) {
	role := strings.TrimSpace(input.Role)
	if role == "" {
		return nil, fmt.Errorf("role is required")
	}
	if !models.ValidExperienceLevel(input.ExperienceLevel) {
		return nil, fmt.Errorf("invalid experience level: %q", input.ExperienceLevel)
	}

	keywords := splitKeywords(input.JobDescriptionKeywords)

	questions, err := s.questions.GenerateQuestions(ctx, role, input.ExperienceLevel, keywords)
	if err != nil || len(questions) == 0 {
		slog.Error("Question generation failed, not creating interview", "error", err, "user_id", userID, "role", role)
		return nil, ErrQuestionGeneration
	}

	interview := &models.Interview{
		UserID:                 userID,
		Role:                   role,
		ExperienceLevel:        input.ExperienceLevel,
		JobDescriptionKeywords: strings.TrimSpace(input.JobDescriptionKeywords),
		Questions:              questions,
	}
	id, err := s.repo.CreateInterview(ctx, interview)
	if err != nil {
		return nil, err
	}
	metrics.InterviewsCreated.Inc()

	return s.getOwned(ctx, id, userID)
}

// GetByID returns the interview if it exists and belongs to userID. A missing
// record is (nil, nil), matching the repository convention.
func (s *InterviewService) GetByID(ctx context.Context, id, userID string) (*models.PlainInterview, error) {
	interview, err := s.repo.GetInterviewByID(ctx, id)
	if err != nil || interview == nil {
		return interview, err
	}
	if interview.UserID != userID {
		return nil, ErrNotOwner
	}
	return interview, nil
}

// List returns the user's full history, newest first.
func (s *InterviewService) List(ctx context.Context, userID string) ([]models.PlainInterview, error) {
	return s.repo.ListInterviewsByOwner(ctx, userID)
}

// ListPaged returns one page of the user's history. pageSize is clamped to
// [1, MaxPageSize]; zero means DefaultPageSize.
func (s *InterviewService) ListPaged(ctx context.Context, userID string, pageSize int, cursor string) (*models.InterviewPage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return s.repo.ListInterviewsByOwnerPaged(ctx, userID, pageSize, cursor)
}

// SaveAnswer stores the answer for one question of an owned interview,
// replacing any earlier answer for the same index.
func (s *InterviewService) SaveAnswer(ctx context.Context, id, userID string, questionIndex int, answer string) error {
	if _, err := s.requireOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.SaveInterviewAnswer(ctx, id, questionIndex, answer); err != nil {
		return err
	}
	metrics.AnswersSaved.Inc()
	return nil
}

// CompleteWithFeedback generates feedback for an owned interview and marks it
// completed. The transcript pairs every question with its stored answer, with
// a placeholder for questions never answered, so the score reflects gaps.
func (s *InterviewService) CompleteWithFeedback(ctx context.Context, id, userID string) (*models.PlainInterview, error) {
	interview, err := s.requireOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if interview.Status == models.StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if len(interview.Answers) != len(interview.Questions) {
		return nil, fmt.Errorf("%w: %d of %d answered", ErrIncompleteAnswers, len(interview.Answers), len(interview.Questions))
	}

	transcript := BuildTranscript(interview.Questions, interview.Answers)
	questions := strings.Join(interview.Questions, "\n")

	timer := metrics.NewGenerationTimer()
	feedback, err := s.feedback.GenerateFeedback(ctx, interview.Role, questions, transcript)
	timer.ObserveDuration()
	if err != nil {
		return nil, err
	}

	if err := s.repo.CompleteInterview(ctx, id, feedback); err != nil {
		return nil, err
	}
	metrics.InterviewsCompleted.Inc()

	return s.getOwned(ctx, id, userID)
}

// Delete removes an owned interview permanently.
func (s *InterviewService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.requireOwned(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.DeleteInterview(ctx, id)
}

// BuildTranscript renders the question-and-answer transcript fed to feedback
// generation. Every question appears in order; unanswered ones carry the
// placeholder.
func BuildTranscript(questions []string, answers []models.Answer) string {
	byIndex := make(map[int]string, len(answers))
	for _, a := range answers {
		byIndex[a.QuestionIndex] = a.Answer
	}

	var b strings.Builder
	for i, q := range questions {
		answer, ok := byIndex[i]
		if !ok || strings.TrimSpace(answer) == "" {
			answer = NoAnswerPlaceholder
		}
		fmt.Fprintf(&b, "Question %d: %s\nAnswer: %s\n\n", i+1, q, answer)
	}
	return strings.TrimSpace(b.String())
}

// requireOwned loads an interview and verifies ownership, turning a missing
// record into ErrInterviewNotFound for mutation callers.
func (s *InterviewService) requireOwned(ctx context.Context, id, userID string) (*models.PlainInterview, error) {
	interview, err := s.repo.GetInterviewByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if interview == nil {
		return nil, repository.ErrInterviewNotFound
	}
	if interview.UserID != userID {
		return nil, ErrNotOwner
	}
	return interview, nil
}

func (s *InterviewService) getOwned(ctx context.Context, id, userID string) (*models.PlainInterview, error) {
	return s.requireOwned(ctx, id, userID)
}

// splitKeywords turns the free-text keywords field into a trimmed list.
func splitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			keywords = append(keywords, s)
		}
	}
	return keywords
}
