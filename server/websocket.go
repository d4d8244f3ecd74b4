package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browser clients connect from any origin
	},
}

const (
	MessageQuery    = "query"
	MessageAdd      = "add"
	MessageResponse = "response"
	MessageAdded    = "added"
	MessageError    = "error"
)

// Message is the frame exchanged on /ws in both directions.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

// handleWebSocket answers each incoming frame with exactly one frame.
// Frames are handled in order because a websocket connection supports
// only one concurrent writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("error reading websocket message")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(r, conn, Message{Type: MessageError, Content: "invalid message: " + err.Error()})
			continue
		}

		s.sendMessage(r, conn, s.handleMessage(r, msg))
	}
}

func (s *Server) handleMessage(r *http.Request, msg Message) Message {
	ctx := r.Context()

	switch msg.Type {
	case MessageQuery:
		answer, err := s.service.Query(ctx, msg.Content)
		if err != nil {
			return Message{Type: MessageError, Content: err.Error()}
		}
		return Message{Type: MessageResponse, Content: answer.Text}
	case MessageAdd:
		id, err := s.service.AddDocument(ctx, msg.Content, msg.ID)
		if err != nil {
			return Message{Type: MessageError, Content: err.Error()}
		}
		return Message{Type: MessageAdded, Content: id}
	default:
		return Message{Type: MessageError, Content: "unknown message type: " + msg.Type}
	}
}

func (s *Server) sendMessage(r *http.Request, conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("type", msg.Type).Msg("error sending websocket message")
	}
}
