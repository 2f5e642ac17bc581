package clubchat

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/handlers"
	"github.com/dsavault/clubchat/internal/models"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// SubscribeRoomMessages streams the log of a club.
func (c *Client) SubscribeRoomMessages(ctx context.Context, roomID string, fn func([]models.Message)) (chat.Unsubscribe, error) {
	if _, ok := chat.LookupRoom(roomID); !ok {
		return nil, chat.ErrUnknownRoom
	}
	return c.subscribe(ctx, "/stream/rooms/"+url.PathEscape(roomID), func(f handlers.StreamFrame) {
		if f.Type == handlers.FrameMessages {
			fn(f.Messages)
		}
	})
}

// SubscribeDirectMessages streams the log shared by userA and userB. The
// server resolves the caller from the token, so the other id is whichever
// one is not the signed-in user.
func (c *Client) SubscribeDirectMessages(ctx context.Context, userA, userB string, fn func([]models.Message)) (chat.Unsubscribe, error) {
	if userA == "" || userB == "" {
		return nil, chat.ErrAuthRequired
	}
	other := userB
	if c.UserID != "" && userB == c.UserID {
		other = userA
	}
	return c.subscribe(ctx, "/stream/dm/"+url.PathEscape(other), func(f handlers.StreamFrame) {
		if f.Type == handlers.FrameMessages {
			fn(f.Messages)
		}
	})
}

// SubscribeInbox streams the caller's inbox.
func (c *Client) SubscribeInbox(ctx context.Context, userID string, fn func([]models.InboxEntry)) (chat.Unsubscribe, error) {
	if userID == "" {
		return nil, chat.ErrAuthRequired
	}
	return c.subscribe(ctx, "/stream/inbox", func(f handlers.StreamFrame) {
		if f.Type == handlers.FrameInbox {
			fn(f.Entries)
		}
	})
}

func (c *Client) streamURL(path string) string {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

// subscribe holds a stream open until the returned Unsubscribe is called or
// ctx is done, reconnecting with backoff. Frames are handed to deliver on a
// single goroutine. The first connection is made before returning so that
// authorization errors surface to the caller.
func (c *Client) subscribe(parent context.Context, path string, deliver func(handlers.StreamFrame)) (chat.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(parent)

	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	target := c.streamURL(path)
	logger := c.Logger.With().Str("stream", path).Logger()

	conn, resp, err := c.Dialer.DialContext(ctx, target, header)
	if err != nil {
		cancel()
		if resp != nil {
			return nil, apiError(resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimPrefix(path, "/stream"))
		}
		return nil, err
	}

	go func() {
		backoff := minBackoff
		for {
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			for {
				var frame handlers.StreamFrame
				if err := conn.ReadJSON(&frame); err != nil {
					if ctx.Err() == nil {
						logger.Warn().Err(err).Msg("stream dropped")
					}
					break
				}
				backoff = minBackoff
				if ctx.Err() != nil {
					break
				}
				deliver(frame)
			}
			stop()
			conn.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff *= 2; backoff > maxBackoff {
					backoff = maxBackoff
				}

				var err error
				conn, _, err = c.Dialer.DialContext(ctx, target, header)
				if err == nil {
					logger.Info().Msg("stream reconnected")
					break
				}
				logger.Warn().Err(err).Dur("retry_in", backoff).Msg("stream reconnect failed")
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}
