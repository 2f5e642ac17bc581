package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/crypto"
	"github.com/dsavault/clubchat/internal/models"
)

// Frame types sent on a stream.
const (
	FrameMessages = "messages"
	FrameInbox    = "inbox"
)

// StreamFrame is one full snapshot pushed to a stream client. Empty
// snapshots omit the list.
type StreamFrame struct {
	Type         string              `json:"type"`
	Conversation string              `json:"conversation,omitempty"`
	Messages     []models.Message    `json:"messages,omitempty"`
	Entries      []models.InboxEntry `json:"entries,omitempty"`
}

// StreamConfig tunes WebSocket keepalive.
type StreamConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	AllowedOrigins []string
}

// DefaultStreamConfig pings every 25s and drops peers silent for 60s.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     25 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// WithStreamConfig overrides the stream settings.
func WithStreamConfig(cfg StreamConfig) func(*Handler) {
	return func(h *Handler) { h.stream = cfg }
}

func (h *Handler) upgrader() *websocket.Upgrader {
	allowed := h.stream.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

type subscribeFunc func(ctx context.Context, push func(StreamFrame)) (chat.Unsubscribe, error)

// StreamRoom pushes the log of club {id} on every change.
func (h *Handler) StreamRoom(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}
	roomID := chi.URLParam(r, "id")
	if _, ok := chat.LookupRoom(roomID); !ok {
		h.ChatError(w, chat.ErrUnknownRoom)
		return
	}

	conv := models.ClubConversation(roomID).String()
	h.serveStream(w, r, user, conv, func(ctx context.Context, push func(StreamFrame)) (chat.Unsubscribe, error) {
		return h.chat.SubscribeRoomMessages(ctx, roomID, func(msgs []models.Message) {
			push(StreamFrame{Type: FrameMessages, Conversation: conv, Messages: msgs})
		})
	})
}

// StreamDirect pushes the log the caller shares with user {id}.
func (h *Handler) StreamDirect(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}
	otherID := chi.URLParam(r, "id")

	conv := models.DirectConversation(user.ID, otherID).String()
	h.serveStream(w, r, user, conv, func(ctx context.Context, push func(StreamFrame)) (chat.Unsubscribe, error) {
		return h.chat.SubscribeDirectMessages(ctx, user.ID, otherID, func(msgs []models.Message) {
			push(StreamFrame{Type: FrameMessages, Conversation: conv, Messages: msgs})
		})
	})
}

// StreamInbox pushes the caller's inbox on every change.
func (h *Handler) StreamInbox(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}

	h.serveStream(w, r, user, models.InboxTopic(user.ID), func(ctx context.Context, push func(StreamFrame)) (chat.Unsubscribe, error) {
		return h.chat.SubscribeInbox(ctx, user.ID, func(entries []models.InboxEntry) {
			push(StreamFrame{Type: FrameInbox, Entries: entries})
		})
	})
}

// serveStream upgrades the connection and forwards snapshots until either
// side goes away. Only the newest undelivered snapshot is kept for a slow
// client.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, user *models.User, topic string, subscribe subscribeFunc) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug().Err(err).Str("topic", topic).Msg("stream upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.With().
		Str("stream_id", crypto.NewTraceID()).
		Str("user", user.ID).
		Str("topic", topic).
		Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan StreamFrame, 1)
	push := func(f StreamFrame) {
		for {
			select {
			case frames <- f:
				return
			default:
			}
			select {
			case <-frames:
			default:
			}
		}
	}

	unsub, err := subscribe(ctx, push)
	if err != nil {
		logger.Error().Err(err).Msg("stream subscribe failed")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(h.stream.WriteWait))
		return
	}
	defer unsub()
	logger.Info().Msg("stream opened")

	// Reader: clients send nothing but control frames.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.stream.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.stream.PongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.stream.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.stream.WriteWait))
			logger.Info().Msg("stream closed")
			return
		case f := <-frames:
			conn.SetWriteDeadline(time.Now().Add(h.stream.WriteWait))
			if err := conn.WriteJSON(f); err != nil {
				logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.stream.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
