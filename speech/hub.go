package speech

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tracks the live capture connections. One client per open interview
// session; registration and teardown are serialized through Run.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Client is one websocket connection bound to an interview session. The
// MessageHandler is set by the HTTP layer after the session wiring exists.
type Client struct {
	Hub            *Hub
	Conn           *websocket.Conn
	Send           chan []byte
	UserID         string
	InterviewID    string
	MessageHandler func(*Client, *Message)
	OnClose        func(*Client)
}

// Message is the wire format in both directions. Type selects which of the
// optional fields are meaningful.
//
// Client to server: "start", "stop", "reset", "result", "error", "end",
// "submit", "finish", "leave".
// Server to client: "recognizer", "transcript", "question", "completed",
// "warning", "confirm_leave".
type Message struct {
	Type string `json:"type"`

	// start
	Resume bool   `json:"resume,omitempty"`
	Locale string `json:"locale,omitempty"`

	// result
	Fragments []Fragment `json:"fragments,omitempty"`

	// error (client), recognizer action (server)
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`

	// leave
	Confirmed bool `json:"confirmed,omitempty"`

	// transcript / question / completed / warning. QuestionIndex keeps its
	// zero value on the wire since 0 is a valid index.
	Text          string          `json:"text"`
	QuestionIndex int             `json:"questionIndex"`
	Question      string          `json:"question,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("Capture client registered", "user_id", client.UserID, "interview_id", client.InterviewID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			if client.OnClose != nil {
				client.OnClose(client)
			}
			slog.Info("Capture client unregistered", "user_id", client.UserID, "interview_id", client.InterviewID)
		}
	}
}

// RegisterClient wraps a raw connection and registers it with the hub. The
// caller starts ReadPump and WritePump after wiring the handlers.
func (h *Hub) RegisterClient(conn *websocket.Conn, userID, interviewID string) *Client {
	client := &Client{
		Hub:         h,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		UserID:      userID,
		InterviewID: interviewID,
	}

	h.register <- client
	return client
}

// SendMessage marshals and queues a message for the client. A full send
// buffer drops the message rather than blocking the caller.
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal capture message", "error", err, "type", msg.Type)
		return
	}
	select {
	case c.Send <- data:
	default:
		slog.Warn("Capture client send buffer full, dropping message", "type", msg.Type, "interview_id", c.InterviewID)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024) // recognition events are small JSON
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to unmarshal capture message", "error", err)
			continue
		}

		if c.MessageHandler != nil {
			c.MessageHandler(c, &msg)
		} else {
			slog.Warn("Capture message dropped, no handler", "type", msg.Type, "interview_id", c.InterviewID)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
