package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/prepvox/backend/metrics"
	"github.com/prepvox/backend/models"
	"github.com/prepvox/backend/speech"
)

// SpeechHandler binds websocket connections to live interview sessions. The
// browser owns the actual microphone; it mirrors every recognition event over
// the socket and obeys recognizer start/stop commands sent back, so the
// server-side capture session stays authoritative for the transcript.
type SpeechHandler struct {
	interviews *InterviewService
	hub        *speech.Hub
	upgrader   websocket.Upgrader
}

func NewSpeechHandler(interviews *InterviewService, hub *speech.Hub, allowedOrigins string) *SpeechHandler {
	return &SpeechHandler{
		interviews: interviews,
		hub:        hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, allowedOrigins)
			},
		},
	}
}

// wsRecognizer proxies recognizer control to the browser. Start and Stop
// become commands on the socket; the resulting events come back as messages.
type wsRecognizer struct {
	client *speech.Client
	locale string
}

func (r *wsRecognizer) Start() error {
	r.client.SendMessage(&speech.Message{Type: "recognizer", Action: "start", Locale: r.locale})
	return nil
}

func (r *wsRecognizer) Stop() {
	r.client.SendMessage(&speech.Message{Type: "recognizer", Action: "stop"})
}

// HandleWebSocket upgrades the connection and runs the interview session
// over it. The interview is named by the interview_id query parameter and
// must belong to the authenticated user.
func (h *SpeechHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok || user == nil {
		slog.Error("WebSocket connection failed, user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	interviewID := r.URL.Query().Get("interview_id")
	if interviewID == "" {
		http.Error(w, "interview_id is required", http.StatusBadRequest)
		return
	}

	interview, err := h.interviews.GetByID(r.Context(), interviewID, user.ID)
	if err != nil || interview == nil {
		http.Error(w, "Interview not found", http.StatusNotFound)
		return
	}
	if interview.Status == models.StatusCompleted {
		http.Error(w, "Interview already completed", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := h.hub.RegisterClient(conn, user.ID, interviewID)

	capture := speech.NewSession(func(locale string) (speech.Recognizer, error) {
		return &wsRecognizer{client: client, locale: locale}, nil
	})
	session := NewLiveSession(h.interviews, capture, interview)

	metrics.CaptureSessionsActive.Inc()
	client.OnClose = func(c *speech.Client) {
		session.Close()
		metrics.CaptureSessionsActive.Dec()
	}
	client.MessageHandler = func(c *speech.Client, msg *speech.Message) {
		h.handleMessage(c, session, msg)
	}

	go client.ReadPump()
	go client.WritePump()

	// Push transcript changes as they accumulate.
	go func() {
		for text := range capture.Updates() {
			client.SendMessage(&speech.Message{Type: "transcript", Text: text})
		}
	}()

	index, question := session.CurrentQuestion()
	client.SendMessage(&speech.Message{Type: "question", QuestionIndex: index, Question: question})

	slog.Info("Speech session established", "user_id", user.ID, "interview_id", interviewID, "question_index", index)
}

func (h *SpeechHandler) handleMessage(client *speech.Client, session *LiveSession, msg *speech.Message) {
	capture := session.Capture()

	switch msg.Type {
	case "start":
		capture.Start(msg.Resume, msg.Locale)
		if errMsg := capture.Err(); errMsg != "" {
			client.SendMessage(&speech.Message{Type: "warning", Text: errMsg})
		}

	case "stop":
		capture.Stop()

	case "reset":
		capture.Reset()

	case "result":
		capture.HandleResult(msg.Fragments)

	case "error":
		capture.HandleError(msg.Code)
		if errMsg := capture.Err(); errMsg != "" {
			client.SendMessage(&speech.Message{Type: "warning", Text: errMsg})
		}

	case "end":
		capture.HandleEnd()

	case "submit":
		h.submit(client, session)

	case "finish":
		if err := session.RetryFinish(context.Background()); err != nil {
			client.SendMessage(&speech.Message{Type: "warning", Text: "Failed to generate feedback. Please try again."})
			return
		}
		h.sendCompleted(client, session)

	case "leave":
		if !msg.Confirmed && session.HasUnsavedAnswer() {
			client.SendMessage(&speech.Message{Type: "confirm_leave", Text: "You have an unsaved answer. Leave anyway?"})
			return
		}
		client.Conn.Close()

	default:
		slog.Warn("Unknown speech message type", "type", msg.Type, "interview_id", client.InterviewID)
	}
}

func (h *SpeechHandler) submit(client *speech.Client, session *LiveSession) {
	err := session.Submit(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrAnswerTooShort):
		client.SendMessage(&speech.Message{Type: "warning", Text: "Your answer is too short to submit."})
		return
	case errors.Is(err, ErrSessionBusy):
		return
	case session.State() == StateFinishFailed:
		client.SendMessage(&speech.Message{Type: "warning", Text: "Failed to generate feedback. Please try again."})
		return
	default:
		client.SendMessage(&speech.Message{Type: "warning", Text: "Failed to save your answer. Please try again."})
		return
	}

	if session.State() == StateCompleted {
		h.sendCompleted(client, session)
		return
	}

	index, question := session.CurrentQuestion()
	client.SendMessage(&speech.Message{Type: "question", QuestionIndex: index, Question: question})
}

func (h *SpeechHandler) sendCompleted(client *speech.Client, session *LiveSession) {
	result := session.Result()
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("Failed to marshal completed interview", "error", err, "interview_id", client.InterviewID)
		return
	}
	client.SendMessage(&speech.Message{Type: "completed", Payload: payload})
}
