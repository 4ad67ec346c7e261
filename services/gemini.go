package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/prepvox/backend/models"
)

const (
	ModelName            = "gemini-2.5-flash"
	DefaultQuestionCount = 7
	GenerationTimeout    = 60 * time.Second
)

// GeminiService generates interview questions and post-interview feedback.
// Both operations are single-shot structured-output calls; there is no
// retry or queueing here, failures surface to the caller.
type GeminiService struct {
	genaiClient   *genai.Client
	questionCount int
}

func NewGeminiService(apiKey string, questionCount int) *GeminiService {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		slog.Error("Failed to create genai client", "error", err)
		return nil
	}

	if questionCount <= 0 {
		questionCount = DefaultQuestionCount
	}

	return &GeminiService{
		genaiClient:   genaiClient,
		questionCount: questionCount,
	}
}

// QuestionCount is the number of questions generated per interview.
func (g *GeminiService) QuestionCount() int {
	return g.questionCount
}

// GenerateQuestions produces the question list for a new interview from the
// target role, experience level and optional focus keywords.
func (g *GeminiService) GenerateQuestions(ctx context.Context, jobRole, experienceLevel string, keywords []string) ([]string, error) {
	if g.genaiClient == nil {
		return nil, fmt.Errorf("genai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, GenerationTimeout)
	defer cancel()

	keywordClause := ""
	if len(keywords) > 0 {
		keywordClause = fmt.Sprintf("\nWeave these focus areas into the questions where relevant: %s.", strings.Join(keywords, ", "))
	}

	prompt := fmt.Sprintf(`You are an expert interviewer. Generate exactly %d interview questions for a %s position at the %s experience level.

Mix behavioral and technical questions appropriate for the level. Each question must be self-contained and answerable verbally in a few minutes.%s

Return only the list of questions.`, g.questionCount, jobRole, experienceLevel, keywordClause)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	}

	result, err := g.genaiClient.Models.GenerateContent(
		ctx,
		ModelName,
		genai.Text(prompt),
		config,
	)
	if err != nil {
		slog.Error("Failed to generate questions", "error", err, "job_role", jobRole, "level", experienceLevel)
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	questions, err := parseQuestionList(result.Text())
	if err != nil {
		slog.Error("Failed to parse generated questions", "error", err, "job_role", jobRole)
		return nil, err
	}

	slog.Info("Generated interview questions", "job_role", jobRole, "level", experienceLevel, "count", len(questions))
	return questions, nil
}

// GenerateFeedback scores a finished interview from its question list and
// answer transcript.
func (g *GeminiService) GenerateFeedback(ctx context.Context, jobRole, questions, transcript string) (*models.Feedback, error) {
	if g.genaiClient == nil {
		return nil, fmt.Errorf("genai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, GenerationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are an experienced interview coach evaluating a mock interview for a %s position.

Questions asked:
%s

Candidate transcript:
%s

Evaluate the candidate's answers. Provide an overall score out of 10, a summary of strengths, and concrete areas of improvement. Unanswered questions should count against the score.`, jobRole, questions, transcript)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"overallScore":       {Type: genai.TypeNumber},
				"strengths":          {Type: genai.TypeString},
				"areasOfImprovement": {Type: genai.TypeString},
			},
			Required: []string{"overallScore", "strengths", "areasOfImprovement"},
		},
	}

	result, err := g.genaiClient.Models.GenerateContent(
		ctx,
		ModelName,
		genai.Text(prompt),
		config,
	)
	if err != nil {
		slog.Error("Failed to generate feedback", "error", err, "job_role", jobRole)
		return nil, fmt.Errorf("failed to generate feedback: %w", err)
	}

	feedback, err := parseFeedback(result.Text())
	if err != nil {
		slog.Error("Failed to parse generated feedback", "error", err, "job_role", jobRole)
		return nil, err
	}

	slog.Info("Generated interview feedback", "job_role", jobRole, "overall_score", feedback.OverallScore)
	return feedback, nil
}

// parseQuestionList decodes the structured question response. Blank entries
// are dropped; an empty result is an error so callers never persist an
// interview without questions.
func parseQuestionList(raw string) ([]string, error) {
	var questions []string
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse question list: %w", err)
	}

	cleaned := make([]string, 0, len(questions))
	for _, q := range questions {
		if s := strings.TrimSpace(q); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("question generation returned no questions")
	}
	return cleaned, nil
}

// parseFeedback decodes the structured feedback response. A score outside
// 0..10 is stored as returned and logged as a data-quality signal rather
// than failing the interview completion.
func parseFeedback(raw string) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := json.Unmarshal([]byte(raw), &feedback); err != nil {
		return nil, fmt.Errorf("failed to parse feedback: %w", err)
	}

	if feedback.OverallScore < 0 || feedback.OverallScore > 10 {
		slog.Warn("Feedback score outside expected range", "overall_score", feedback.OverallScore)
	}
	return &feedback, nil
}
