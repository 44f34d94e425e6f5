package app

import "testing"

func TestUserFeedURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"wss://ws-subscriptions-clob.polymarket.com", "wss://ws-subscriptions-clob.polymarket.com/ws/user"},
		{"wss://ws-subscriptions-clob.polymarket.com/", "wss://ws-subscriptions-clob.polymarket.com/ws/user"},
		{"wss://ws-subscriptions-clob.polymarket.com/ws/user", "wss://ws-subscriptions-clob.polymarket.com/ws/user"},
		{"ws://127.0.0.1:9944", "ws://127.0.0.1:9944/ws/user"},
	}
	for _, tt := range tests {
		if got := userFeedURL(tt.host); got != tt.want {
			t.Fatalf("userFeedURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
