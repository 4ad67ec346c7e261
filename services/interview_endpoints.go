package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/prepvox/backend/models"
	"github.com/prepvox/backend/repository"
)

// InterviewEndpoints exposes the interview record store over REST. Every
// route runs behind the auth middleware; the owner is always the
// authenticated user, never a request parameter.
type InterviewEndpoints struct {
	interviews *InterviewService
}

func NewInterviewEndpoints(interviews *InterviewService) *InterviewEndpoints {
	return &InterviewEndpoints{
		interviews: interviews,
	}
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.CreateHandler)
		r.Get("/", e.ListHandler)
		r.Get("/paged", e.ListPagedHandler)
		r.Get("/{id}", e.GetHandler)
		r.Post("/{id}/answers", e.SaveAnswerHandler)
		r.Post("/{id}/complete", e.CompleteHandler)
		r.Get("/{id}/feedback", e.FeedbackHandler)
		r.Delete("/{id}", e.DeleteHandler)
	})
}

type SaveAnswerRequest struct {
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

func (e *InterviewEndpoints) CreateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var input CreateInterviewInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	interview, err := e.interviews.Create(r.Context(), user.ID, input)
	if err != nil {
		if errors.Is(err, ErrQuestionGeneration) {
			http.Error(w, "Failed to generate interview questions", http.StatusBadGateway)
			return
		}
		slog.Error("Failed to create interview", "error", err, "user_id", user.ID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(interview)
}

func (e *InterviewEndpoints) ListHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	interviews, err := e.interviews.List(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Failed to list interviews", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"interviews": interviews})
}

func (e *InterviewEndpoints) ListPagedHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid page_size", http.StatusBadRequest)
			return
		}
		pageSize = parsed
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := e.interviews.ListPaged(r.Context(), user.ID, pageSize, cursor)
	if err != nil {
		if errors.Is(err, repository.ErrCursorNotFound) {
			http.Error(w, "Pagination cursor not found", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to list interviews", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func (e *InterviewEndpoints) GetHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	interview, err := e.interviews.GetByID(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		writeInterviewError(w, err)
		return
	}
	if interview == nil {
		http.Error(w, "Interview not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(interview)
}

func (e *InterviewEndpoints) SaveAnswerHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req SaveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	if err := e.interviews.SaveAnswer(r.Context(), id, user.ID, req.QuestionIndex, req.Answer); err != nil {
		if errors.Is(err, repository.ErrQuestionIndexOutOfRange) {
			http.Error(w, "Question index out of range", http.StatusBadRequest)
			return
		}
		writeInterviewError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Answer saved"})
}

func (e *InterviewEndpoints) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	interview, err := e.interviews.CompleteWithFeedback(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			http.Error(w, "Interview already completed", http.StatusConflict)
			return
		}
		if errors.Is(err, ErrIncompleteAnswers) {
			http.Error(w, "All questions must be answered before completion", http.StatusPreconditionFailed)
			return
		}
		writeInterviewError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(interview)
}

// FeedbackHandler is the polling endpoint used while feedback generation is
// in flight. It returns the feedback once the interview is completed and a
// 202 with a generating status before that.
func (e *InterviewEndpoints) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	interview, err := e.interviews.GetByID(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		writeInterviewError(w, err)
		return
	}
	if interview == nil {
		http.Error(w, "Interview not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if interview.Status != models.StatusCompleted {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": interview.Status})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       interview.Status,
		"feedback":     interview.Feedback,
		"completed_at": interview.CompletedAt,
	})
}

func (e *InterviewEndpoints) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if err := e.interviews.Delete(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		writeInterviewError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Interview deleted"})
}

// writeInterviewError maps service errors to HTTP responses. Ownership
// failures look identical to not-found so ids cannot be probed.
func writeInterviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInterviewNotFound), errors.Is(err, ErrNotOwner):
		http.Error(w, "Interview not found", http.StatusNotFound)
	default:
		slog.Error("Interview request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
