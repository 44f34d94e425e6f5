package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quoterlabs/polyquoter/internal/crypto"
	"github.com/quoterlabs/polyquoter/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestToFill(t *testing.T) {
	msg := tradeMessage{
		EventType: "trade",
		ID:        "trade-1",
		Market:    "0xcond",
		AssetID:   "tok-1",
		Side:      "BUY",
		Price:     "0.40",
		Size:      "25",
		Status:    "MATCHED",
		MatchTime: "1700000000",
	}

	fill, err := msg.toFill()
	if err != nil {
		t.Fatalf("toFill() error = %v", err)
	}
	if fill.ID != "trade-1" || fill.TokenID != "tok-1" || fill.MarketID != "0xcond" {
		t.Fatalf("fill identity = %+v", fill)
	}
	if fill.Side != domain.OrderSideBuy || fill.Price != 0.40 || fill.Size != 25 {
		t.Fatalf("fill terms = %+v", fill)
	}
	if fill.Source != domain.FillSourceWS {
		t.Fatalf("fill.Source = %q, want ws", fill.Source)
	}
	if got := fill.CreatedAt.Unix(); got != 1700000000 {
		t.Fatalf("fill.CreatedAt = %d, want 1700000000", got)
	}
}

func TestToFillRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		msg  tradeMessage
	}{
		{"bad price", tradeMessage{Side: "BUY", Price: "x", Size: "1"}},
		{"bad size", tradeMessage{Side: "BUY", Price: "0.5", Size: ""}},
		{"bad side", tradeMessage{Side: "HOLD", Price: "0.5", Size: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.toFill(); err == nil {
				t.Fatal("toFill() error = nil, want parse error")
			}
		})
	}
}

func TestHandleMessageFiltersAndBatches(t *testing.T) {
	var got []domain.Fill
	f := NewUserFeed("ws://unused", crypto.HMACAuth{}, []string{"0xcond"},
		func(_ context.Context, fill domain.Fill) { got = append(got, fill) },
		discardLogger())

	matched := `{"event_type":"trade","id":"t1","market":"0xcond","asset_id":"tok","side":"SELL","price":"0.62","size":"10","status":"MATCHED"}`
	mined := `{"event_type":"trade","id":"t1","market":"0xcond","asset_id":"tok","side":"SELL","price":"0.62","size":"10","status":"MINED"}`
	order := `{"event_type":"order","id":"o1"}`

	// Batched array with one countable fill.
	f.handleMessage(context.Background(), []byte("["+matched+","+mined+","+order+"]"))
	// Single object form.
	f.handleMessage(context.Background(), []byte(matched))
	// Garbage is dropped silently.
	f.handleMessage(context.Background(), []byte("not json"))

	if len(got) != 2 {
		t.Fatalf("handler called %d times, want 2", len(got))
	}
	if got[0].ID != "t1" || got[0].Side != domain.OrderSideSell || got[0].Size != 10 {
		t.Fatalf("fill = %+v", got[0])
	}
}

func TestUserFeedSubscribesAndDeliversFills(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var subMu sync.Mutex
	var sub subscribeCommand

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		subMu.Lock()
		err = json.Unmarshal(raw, &sub)
		subMu.Unlock()
		if err != nil {
			t.Errorf("decode subscribe: %v", err)
			return
		}

		trade := `[{"event_type":"trade","id":"t9","market":"0xcond","asset_id":"tok","side":"BUY","price":"0.40","size":"5","status":"MATCHED"}]`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(trade)); err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	fills := make(chan domain.Fill, 1)
	auth := crypto.HMACAuth{Key: "k", Secret: "s", Passphrase: "p"}
	f := NewUserFeed(wsURL, auth, []string{"0xcond"},
		func(_ context.Context, fill domain.Fill) { fills <- fill },
		discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	select {
	case fill := <-fills:
		if fill.ID != "t9" || fill.Price != 0.40 {
			t.Fatalf("fill = %+v", fill)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fill")
	}

	subMu.Lock()
	if sub.Type != "user" || sub.Auth.APIKey != "k" || len(sub.Markets) != 1 {
		t.Fatalf("subscribe command = %+v", sub)
	}
	subMu.Unlock()

	f.Close()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}
