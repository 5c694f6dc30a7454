package ingress

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookParsesAndForwardsSwapEvent(t *testing.T) {
	w := NewWebhook("127.0.0.1", 0, 4)

	body, _ := json.Marshal(swapPayload{
		TxSignature: "TX1", WalletAddr: "W1", TokenAddr: "TOKEN1", Direction: "Buy",
		AmountToken: "100", AmountSOL: "1", Slot: 1, BlockTime: time.Now().Unix(),
	})
	req := httptest.NewRequest("POST", "/webhook/swap", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	select {
	case ev := <-w.Events:
		if ev.TxSignature != "TX1" || ev.WalletAddr != "W1" {
			t.Fatalf("unexpected forwarded event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected swap event to be forwarded to Events channel")
	}
}

func TestWebhookRejectsMalformedAmount(t *testing.T) {
	w := NewWebhook("127.0.0.1", 0, 4)

	body, _ := json.Marshal(swapPayload{
		TxSignature: "TX2", WalletAddr: "W1", TokenAddr: "TOKEN1", Direction: "Buy",
		AmountToken: "not-a-number", AmountSOL: "1",
	})
	req := httptest.NewRequest("POST", "/webhook/swap", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for malformed amount, got %d", resp.StatusCode)
	}
}

func TestWebhookHealthEndpoint(t *testing.T) {
	w := NewWebhook("127.0.0.1", 0, 4)
	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := w.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
