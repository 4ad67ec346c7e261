package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prepvox/backend/models"
)

func newTestRepository(t *testing.T) (*GORMRepository, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := NewGORMRepository(db)
	require.NoError(t, repo.AutoMigrate())

	user := &models.User{Email: t.Name() + "@example.com", Password: "hashed"}
	require.NoError(t, repo.CreateUser(context.Background(), user))

	return repo, user.ID
}

func createInterviews(t *testing.T, repo *GORMRepository, userID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := repo.CreateInterview(context.Background(), &models.Interview{
			UserID:          userID,
			Role:            fmt.Sprintf("Role %d", i),
			ExperienceLevel: models.LevelFresher,
			Questions:       []string{"Q1", "Q2", "Q3"},
		})
		require.NoError(t, err)
		ids = append(ids, id)
		// Distinct creation times so ordering is deterministic.
		time.Sleep(2 * time.Millisecond)
	}
	return ids
}

func TestCreateInterviewDefaults(t *testing.T) {
	repo, userID := newTestRepository(t)

	id, err := repo.CreateInterview(context.Background(), &models.Interview{
		UserID:          userID,
		Role:            "Backend Engineer",
		ExperienceLevel: models.LevelSenior,
		Questions:       []string{"Q1"},
		Status:          models.StatusCompleted, // must be overridden
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.GetInterviewByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, models.StatusPending, got.Status)
	assert.NotNil(t, got.Answers)
	assert.Empty(t, got.Answers)
	assert.Nil(t, got.Feedback)
	require.NotNil(t, got.CreatedAt)
	assert.WithinDuration(t, time.Now(), got.CreatedAt.Time(), time.Minute, "creation time comes from the server clock")
	assert.Nil(t, got.CompletedAt)
}

func TestGetInterviewByIDMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	got, err := repo.GetInterviewByID(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListInterviewsNewestFirst(t *testing.T) {
	repo, userID := newTestRepository(t)
	ids := createInterviews(t, repo, userID, 3)

	interviews, err := repo.ListInterviewsByOwner(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, interviews, 3)

	assert.Equal(t, ids[2], interviews[0].ID)
	assert.Equal(t, ids[1], interviews[1].ID)
	assert.Equal(t, ids[0], interviews[2].ID)
}

func TestListInterviewsScopedToOwner(t *testing.T) {
	repo, userID := newTestRepository(t)
	createInterviews(t, repo, userID, 2)

	other := &models.User{Email: "other@example.com", Password: "hashed"}
	require.NoError(t, repo.CreateUser(context.Background(), other))
	createInterviews(t, repo, other.ID, 1)

	interviews, err := repo.ListInterviewsByOwner(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, interviews, 2)
}

func TestPaginationCoversAllWithoutDuplicates(t *testing.T) {
	repo, userID := newTestRepository(t)
	createInterviews(t, repo, userID, 7)

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := repo.ListInterviewsByOwnerPaged(context.Background(), userID, 3, cursor)
		require.NoError(t, err)
		pages++

		for _, iv := range page.Interviews {
			assert.False(t, seen[iv.ID], "interview %s returned twice", iv.ID)
			seen[iv.ID] = true
		}

		if !page.HasMore {
			break
		}
		require.NotEmpty(t, page.NextCursor)
		cursor = page.NextCursor
	}

	assert.Len(t, seen, 7, "pagination must cover every interview exactly once")
	assert.Equal(t, 3, pages)
}

func TestPaginationHasMore(t *testing.T) {
	repo, userID := newTestRepository(t)
	createInterviews(t, repo, userID, 3)

	page, err := repo.ListInterviewsByOwnerPaged(context.Background(), userID, 3, "")
	require.NoError(t, err)

	assert.Len(t, page.Interviews, 3)
	assert.False(t, page.HasMore, "an exactly-full page is the last page")
}

func TestPaginationMissingCursor(t *testing.T) {
	repo, userID := newTestRepository(t)
	createInterviews(t, repo, userID, 2)

	_, err := repo.ListInterviewsByOwnerPaged(context.Background(), userID, 2, "deleted-cursor")
	assert.ErrorIs(t, err, ErrCursorNotFound)
}

func TestPaginationCursorScopedToOwner(t *testing.T) {
	repo, userID := newTestRepository(t)
	createInterviews(t, repo, userID, 2)

	other := &models.User{Email: "other-cursor@example.com", Password: "hashed"}
	require.NoError(t, repo.CreateUser(context.Background(), other))
	otherIDs := createInterviews(t, repo, other.ID, 1)

	// Another user's interview id is not a valid cursor.
	_, err := repo.ListInterviewsByOwnerPaged(context.Background(), userID, 2, otherIDs[0])
	assert.ErrorIs(t, err, ErrCursorNotFound)
}

func TestSaveInterviewAnswerLastWriteWins(t *testing.T) {
	repo, userID := newTestRepository(t)
	ids := createInterviews(t, repo, userID, 1)

	require.NoError(t, repo.SaveInterviewAnswer(context.Background(), ids[0], 1, "first"))
	require.NoError(t, repo.SaveInterviewAnswer(context.Background(), ids[0], 1, "second"))

	got, err := repo.GetInterviewByID(context.Background(), ids[0])
	require.NoError(t, err)

	require.Len(t, got.Answers, 1)
	assert.Equal(t, models.Answer{QuestionIndex: 1, Answer: "second"}, got.Answers[0])
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestSaveInterviewAnswerBounds(t *testing.T) {
	repo, userID := newTestRepository(t)
	ids := createInterviews(t, repo, userID, 1)

	assert.ErrorIs(t, repo.SaveInterviewAnswer(context.Background(), ids[0], 3, "x"), ErrQuestionIndexOutOfRange)
	assert.ErrorIs(t, repo.SaveInterviewAnswer(context.Background(), ids[0], -1, "x"), ErrQuestionIndexOutOfRange)
	assert.ErrorIs(t, repo.SaveInterviewAnswer(context.Background(), "missing", 0, "x"), ErrInterviewNotFound)
}

func TestCompleteInterview(t *testing.T) {
	repo, userID := newTestRepository(t)
	ids := createInterviews(t, repo, userID, 1)

	feedback := &models.Feedback{OverallScore: 6, Strengths: "s", AreasOfImprovement: "a"}
	require.NoError(t, repo.CompleteInterview(context.Background(), ids[0], feedback))

	got, err := repo.GetInterviewByID(context.Background(), ids[0])
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, float64(6), got.Feedback.OverallScore)
	require.NotNil(t, got.CompletedAt, "completion must set the completion time with the feedback")

	assert.ErrorIs(t, repo.CompleteInterview(context.Background(), "missing", feedback), ErrInterviewNotFound)
}

func TestDeleteInterviewRemovesFromListings(t *testing.T) {
	repo, userID := newTestRepository(t)
	ids := createInterviews(t, repo, userID, 3)

	require.NoError(t, repo.DeleteInterview(context.Background(), ids[1]))

	got, err := repo.GetInterviewByID(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Nil(t, got)

	interviews, err := repo.ListInterviewsByOwner(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, interviews, 2)

	assert.ErrorIs(t, repo.DeleteInterview(context.Background(), ids[1]), ErrInterviewNotFound)
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	repo, userID := newTestRepository(t)

	require.NoError(t, repo.CreateRefreshToken(context.Background(), &models.RefreshToken{
		UserID: userID, Token: "expired", ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, repo.CreateRefreshToken(context.Background(), &models.RefreshToken{
		UserID: userID, Token: "live", ExpiresAt: time.Now().Add(time.Hour),
	}))

	removed, err := repo.DeleteExpiredRefreshTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	live, err := repo.GetRefreshToken(context.Background(), "live")
	require.NoError(t, err)
	assert.NotNil(t, live)
}
