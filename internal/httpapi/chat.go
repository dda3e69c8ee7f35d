package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/chat"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/memory"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/protocol"
)

type sendRequest struct {
	CompanionID string `json:"companion_id"`
	Content     string `json:"content"`
}

type sendResponse struct {
	Reply       string `json:"reply"`
	UserTurnID  int64  `json:"user_turn_id"`
	ReplyTurnID int64  `json:"reply_turn_id"`
	Blocked     bool   `json:"blocked,omitempty"`
	Recalled    int    `json:"recalled_memories"`
	Degraded    bool   `json:"degraded,omitempty"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.CompanionID) == "" || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "companion_id and content are required")
		return
	}

	res, err := s.orch.HandleMessage(r.Context(), chat.Request{
		CompanionID: req.CompanionID,
		UserID:      identityFrom(r.Context()).UserID,
		Content:     req.Content,
	})
	if err != nil {
		respondTurnError(w, err)
		return
	}

	if res.Rejected && res.RejectReason == chat.RejectRateLimited {
		retryAfterHeader(w, res)
		respondError(w, http.StatusTooManyRequests, "rate_limited", "too many messages, slow down")
		return
	}

	// A content block is a successful exchange from the transport's
	// point of view: the refusal is the reply and both turns persisted.
	respondJSON(w, http.StatusOK, sendResponse{
		Reply:       res.Reply,
		UserTurnID:  res.UserTurnID,
		ReplyTurnID: res.ReplyTurnID,
		Blocked:     res.Rejected && res.RejectReason == chat.RejectContentBlocked,
		Recalled:    res.Recalled,
		Degraded:    res.Degraded,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	companionID := chi.URLParam(r, "companionID")
	scope := memory.Scope{
		CompanionID: companionID,
		UserID:      identityFrom(r.Context()).UserID,
	}

	limit := 50
	turns, err := s.store.RecentTurns(r.Context(), scope, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_failed", err.Error())
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"companion_id": companionID,
		"turns":        turns,
	})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(300 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		msg := parsed.(protocol.ChatMessage)

		res, err := s.orch.HandleMessage(r.Context(), chat.Request{
			CompanionID: msg.CompanionID,
			UserID:      identity.UserID,
			Content:     msg.Content,
		})
		if err != nil {
			s.writeWS(conn, wsErrorEvent(err))
			continue
		}
		if res.Rejected && res.RejectReason == chat.RejectRateLimited {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "rate_limited",
				Retryable: true,
				Detail:    "retry after " + res.RetryAfter.Truncate(time.Second).String(),
			})
			continue
		}

		s.writeWS(conn, protocol.ChatReply{
			Type:        protocol.TypeChatReply,
			CompanionID: msg.CompanionID,
			TurnID:      res.ReplyTurnID,
			Content:     res.Reply,
			Blocked:     res.Rejected && res.RejectReason == chat.RejectContentBlocked,
		})
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(msg)
}

func wsErrorEvent(err error) protocol.ErrorEvent {
	switch {
	case isNotFound(err):
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "companion_not_found", Detail: err.Error()}
	case isTimeout(err):
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "turn_timeout", Retryable: true}
	default:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "turn_failed", Retryable: isRetryable(err)}
	}
}
