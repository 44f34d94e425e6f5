package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

func TestAPIBookToSnapshot(t *testing.T) {
	raw := `{
		"market": "0xcond",
		"asset_id": "123",
		"bids": [{"price":"0.39","size":"100"},{"price":"0.40","size":"50"}],
		"asks": [{"price":"0.45","size":"80"}],
		"timestamp": "1700000000000"
	}`
	var book APIBook
	if err := json.Unmarshal([]byte(raw), &book); err != nil {
		t.Fatal(err)
	}

	snap := book.ToSnapshot(0.01)
	if snap.TokenID != "123" || snap.TickSize != 0.01 {
		t.Fatalf("snapshot meta = %+v", snap)
	}
	if len(snap.Bids) != 2 || snap.Bids[1].Price != 0.40 {
		t.Fatalf("bids = %+v", snap.Bids)
	}
	if snap.Timestamp.UnixMilli() != 1700000000000 {
		t.Fatalf("timestamp = %v", snap.Timestamp)
	}
}

func TestAPIOrderToDomain(t *testing.T) {
	a := APIOrder{
		ID: "0xorder", Market: "0xcond", AssetID: "123",
		Side: "SELL", Price: "0.62", OriginalSize: "100", SizeMatched: "40",
		CreatedAt: 1700000000,
	}
	o := a.ToDomainOrder()
	if o.Side != domain.OrderSideSell || o.Price != 0.62 {
		t.Fatalf("order = %+v", o)
	}
	if o.Remaining() != 60 {
		t.Fatalf("Remaining = %v", o.Remaining())
	}
	if o.CreatedAt.Unix() != 1700000000 {
		t.Fatalf("CreatedAt = %v", o.CreatedAt)
	}
}

func TestGammaMarketToDomain(t *testing.T) {
	raw := `{
		"question": "Will it rain tomorrow?",
		"conditionId": "0xcond",
		"slug": "will-it-rain",
		"active": "true",
		"closed": false,
		"acceptingOrders": true,
		"negRisk": false,
		"outcomes": "[\"Yes\",\"No\"]",
		"clobTokenIds": "[\"111\",\"222\"]",
		"orderPriceMinTickSize": 0.01,
		"orderMinSize": 5
	}`
	var m APIGammaMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}

	dm := m.ToDomainMarket()
	if dm.YesTokenID != "111" || dm.NoTokenID != "222" {
		t.Fatalf("tokens = %q/%q", dm.YesTokenID, dm.NoTokenID)
	}
	if !dm.Active || !dm.AcceptingOrders {
		t.Fatalf("flags = %+v", dm)
	}
	if dm.TickSize != 0.01 || dm.MinOrderSize != 5 {
		t.Fatalf("sizes = %+v", dm)
	}
	if dm.TokenFor(domain.TradeSideNo) != "222" {
		t.Fatalf("TokenFor(no) = %q", dm.TokenFor(domain.TradeSideNo))
	}
}

func TestClobMarketToDomain(t *testing.T) {
	m := APIClobMarket{
		ConditionID: "0xcond", Question: "Q", MarketSlug: "q",
		Active: true, AcceptingOrders: true,
		MinimumTick: 0.001, MinimumOrder: 5, NegRisk: true,
		Tokens: []APIClobToken{
			{TokenID: "111", Outcome: "Yes"},
			{TokenID: "222", Outcome: "No"},
		},
	}
	dm := m.ToDomainMarket()
	if dm.YesTokenID != "111" || dm.NoTokenID != "222" || !dm.NegRisk {
		t.Fatalf("market = %+v", dm)
	}
}
