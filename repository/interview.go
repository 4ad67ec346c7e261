package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepvox/backend/models"
)

var (
	// ErrInterviewNotFound is returned by mutations that target a missing
	// record. Point lookups return (nil, nil) instead.
	ErrInterviewNotFound = errors.New("interview not found")

	// ErrCursorNotFound is returned when a pagination cursor refers to a
	// record that no longer exists. Paging must not silently skip or restart.
	ErrCursorNotFound = errors.New("pagination cursor record not found")

	// ErrQuestionIndexOutOfRange is returned when an answer targets an index
	// outside [0, len(questions)).
	ErrQuestionIndexOutOfRange = errors.New("question index out of range")
)

// CreateInterview inserts a new record with pending status, empty answers and
// a server-clock creation time, and returns the assigned id.
func (r *GORMRepository) CreateInterview(ctx context.Context, interview *models.Interview) (string, error) {
	interview.Status = models.StatusPending
	if interview.Answers == nil {
		interview.Answers = datatypes.JSONSlice[models.Answer]{}
	}
	interview.CreatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(interview).Error; err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", interview.UserID)
		return "", err
	}
	slog.Info("Interview created", "interview_id", interview.ID, "user_id", interview.UserID, "questions", len(interview.Questions))
	return interview.ID, nil
}

// GetInterviewByID is a point lookup. A missing record is (nil, nil), not an
// error. Timestamps are normalized before the record crosses the boundary.
func (r *GORMRepository) GetInterviewByID(ctx context.Context, id string) (*models.PlainInterview, error) {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&interview).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		return nil, err
	}
	return interview.Plain(), nil
}

// ListInterviewsByOwner returns all of a user's interviews, newest first.
func (r *GORMRepository) ListInterviewsByOwner(ctx context.Context, userID string) ([]models.PlainInterview, error) {
	var rows []models.Interview
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		slog.Error("Failed to list interviews", "error", err, "user_id", userID)
		return nil, err
	}

	interviews := make([]models.PlainInterview, 0, len(rows))
	for i := range rows {
		interviews = append(interviews, *rows[i].Plain())
	}
	return interviews, nil
}

// ListInterviewsByOwnerPaged returns one page of the user's history, newest
// first, starting strictly after the cursor record when a cursor is given.
// It fetches pageSize+1 rows to decide HasMore without a count query.
func (r *GORMRepository) ListInterviewsByOwnerPaged(ctx context.Context, userID string, pageSize int, cursor string) (*models.InterviewPage, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)

	if cursor != "" {
		// Scoped to the owner so cursor values cannot probe other users'
		// interview ids.
		var after models.Interview
		err := r.db.WithContext(ctx).Select("id", "created_at").Where("id = ? AND user_id = ?", cursor, userID).First(&after).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrCursorNotFound
			}
			slog.Error("Failed to resolve pagination cursor", "error", err, "cursor", cursor)
			return nil, err
		}
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id > ?)",
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}

	var rows []models.Interview
	err := query.
		Order("created_at DESC, id ASC").
		Limit(pageSize + 1).
		Find(&rows).Error
	if err != nil {
		slog.Error("Failed to list interviews page", "error", err, "user_id", userID, "cursor", cursor)
		return nil, err
	}

	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}

	page := &models.InterviewPage{
		Interviews: make([]models.PlainInterview, 0, len(rows)),
		HasMore:    hasMore,
	}
	for i := range rows {
		page.Interviews = append(page.Interviews, *rows[i].Plain())
	}
	if len(rows) > 0 {
		page.NextCursor = rows[len(rows)-1].ID
	}
	return page, nil
}

// SaveInterviewAnswer stores the answer for one question index. Any previous
// entry for the same index is replaced, so the answers mapping keeps exactly
// one entry per index. The status is set to in-progress; this call never sets
// completed and never advances past it.
func (r *GORMRepository) SaveInterviewAnswer(ctx context.Context, id string, questionIndex int, answer string) error {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&interview).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrInterviewNotFound
		}
		slog.Error("Failed to load interview for answer", "error", err, "interview_id", id)
		return err
	}

	if questionIndex < 0 || questionIndex >= len(interview.Questions) {
		return fmt.Errorf("%w: %d of %d questions", ErrQuestionIndexOutOfRange, questionIndex, len(interview.Questions))
	}

	answers := make([]models.Answer, 0, len(interview.Answers)+1)
	for _, a := range interview.Answers {
		if a.QuestionIndex != questionIndex {
			answers = append(answers, a)
		}
	}
	answers = append(answers, models.Answer{QuestionIndex: questionIndex, Answer: answer})

	err := r.db.WithContext(ctx).Model(&interview).Updates(map[string]any{
		"answers": datatypes.NewJSONSlice(answers),
		"status":  models.StatusInProgress,
	}).Error
	if err != nil {
		slog.Error("Failed to save answer", "error", err, "interview_id", id, "question_index", questionIndex)
		return err
	}

	slog.Info("Answer saved", "interview_id", id, "question_index", questionIndex, "answered", len(answers))
	return nil
}

// CompleteInterview writes the feedback, the completed status and the
// completion time as a single update.
func (r *GORMRepository) CompleteInterview(ctx context.Context, id string, feedback *models.Feedback) error {
	completedAt := time.Now()
	fb := datatypes.NewJSONType(*feedback)

	result := r.db.WithContext(ctx).Model(&models.Interview{}).Where("id = ?", id).Updates(map[string]any{
		"feedback":     fb,
		"status":       models.StatusCompleted,
		"completed_at": completedAt,
	})
	if result.Error != nil {
		slog.Error("Failed to complete interview", "error", result.Error, "interview_id", id)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInterviewNotFound
	}

	slog.Info("Interview completed", "interview_id", id, "overall_score", feedback.OverallScore)
	return nil
}

// DeleteInterview hard-deletes the record. Ownership is enforced by the
// caller; a missing record is reported as ErrInterviewNotFound.
func (r *GORMRepository) DeleteInterview(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Interview{})
	if result.Error != nil {
		slog.Error("Failed to delete interview", "error", result.Error, "interview_id", id)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInterviewNotFound
	}

	slog.Info("Interview deleted", "interview_id", id)
	return nil
}
