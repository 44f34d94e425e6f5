// Package feed streams authenticated user-channel events from the
// Polymarket CLOB WebSocket. Trade events become domain fills and are
// handed to the trading layer, which treats them as a faster signal
// alongside the per-tick position poll.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quoterlabs/polyquoter/internal/crypto"
	"github.com/quoterlabs/polyquoter/internal/domain"
)

const (
	// writeWait bounds each write to the peer.
	writeWait = 10 * time.Second

	// pongWait bounds the wait for the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base backoff before redialing.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the backoff.
	maxReconnectDelay = 60 * time.Second
)

// FillHandler receives each fill observed on the user channel.
type FillHandler func(ctx context.Context, fill domain.Fill)

// UserFeed subscribes to the CLOB user channel for a set of markets and
// converts trade events into domain fills. The user channel only carries
// events about the authenticated account's own orders. The feed redials
// with exponential backoff on disconnect and resubscribes.
type UserFeed struct {
	wsURL   string
	auth    crypto.HMACAuth
	markets []string
	onFill  FillHandler
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewUserFeed creates a feed for the given condition IDs.
//
// wsURL is the user-channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/user".
func NewUserFeed(wsURL string, auth crypto.HMACAuth, markets []string, onFill FillHandler, logger *slog.Logger) *UserFeed {
	return &UserFeed{
		wsURL:   wsURL,
		auth:    auth,
		markets: markets,
		onFill:  onFill,
		logger:  logger.With(slog.String("component", "userfeed")),
		done:    make(chan struct{}),
	}
}

// Run connects and processes events until ctx is cancelled or Close is
// called. Each disconnect triggers a redial with exponential backoff; the
// backoff resets after a healthy connection.
func (f *UserFeed) Run(ctx context.Context) error {
	if len(f.markets) == 0 {
		f.logger.Info("no markets to watch, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}

		if time.Since(start) > time.Minute {
			delay = reconnectDelay
		}
		f.logger.Warn("user feed disconnected, reconnecting",
			slog.String("error", fmt.Sprint(err)),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed. Safe to call more than once.
func (f *UserFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// subscribeCommand is the authenticated subscribe envelope the user channel
// expects as the first client message.
type subscribeCommand struct {
	Auth    subscribeAuth `json:"auth"`
	Type    string        `json:"type"`
	Markets []string      `json:"markets"`
}

type subscribeAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func (f *UserFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	cmd := subscribeCommand{
		Auth: subscribeAuth{
			APIKey:     f.auth.Key,
			Secret:     f.auth.Secret,
			Passphrase: f.auth.Passphrase,
		},
		Type:    "user",
		Markets: f.markets,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("user feed subscribed", slog.Int("markets", len(f.markets)))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when the context or the feed ends so the blocked
	// ReadMessage below returns.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-f.done:
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

// tradeMessage is a user-channel trade event. The server batches messages
// into arrays, so handleMessage tries both shapes.
type tradeMessage struct {
	EventType string `json:"event_type"`
	ID        string `json:"id"`
	Market    string `json:"market"`
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Status    string `json:"status"`
	MatchTime string `json:"match_time"`
}

func (f *UserFeed) handleMessage(ctx context.Context, raw []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		batch = []json.RawMessage{raw}
	}
	for _, item := range batch {
		var msg tradeMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			continue
		}
		if msg.EventType != "trade" {
			continue
		}
		// MATCHED is the first status a trade reaches; later lifecycle
		// statuses (MINED, CONFIRMED) repeat the same trade ID and would
		// double-count the fill.
		if msg.Status != "MATCHED" {
			continue
		}
		fill, err := msg.toFill()
		if err != nil {
			f.logger.Warn("dropping malformed trade event",
				slog.String("trade_id", msg.ID),
				slog.String("error", err.Error()))
			continue
		}
		if f.onFill != nil {
			f.onFill(ctx, fill)
		}
	}
}

func (m tradeMessage) toFill() (domain.Fill, error) {
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("feed: parse price %q: %w", m.Price, err)
	}
	size, err := strconv.ParseFloat(m.Size, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("feed: parse size %q: %w", m.Size, err)
	}
	side := domain.OrderSide(m.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return domain.Fill{}, fmt.Errorf("feed: unknown side %q", m.Side)
	}

	createdAt := time.Now().UTC()
	if m.MatchTime != "" {
		if secs, err := strconv.ParseInt(m.MatchTime, 10, 64); err == nil {
			createdAt = time.Unix(secs, 0).UTC()
		}
	}

	return domain.Fill{
		ID:        m.ID,
		MarketID:  m.Market,
		TokenID:   m.AssetID,
		Side:      side,
		Price:     price,
		Size:      size,
		Source:    domain.FillSourceWS,
		CreatedAt: createdAt,
	}, nil
}
