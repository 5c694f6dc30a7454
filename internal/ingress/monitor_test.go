package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func TestWalletMonitorForwardsDecodedSwapEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msg, _ := json.Marshal(wireSwapMessage{
			TxSignature: "TX1", WalletAddr: "W1", TokenAddr: "TOKEN1", Direction: "Sell",
			AmountToken: "50", AmountSOL: "2", BlockTime: time.Now().Unix(),
		})
		conn.WriteMessage(websocket.TextMessage, msg)
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	monitor := NewWalletMonitor(wsURL, 50*time.Millisecond, time.Minute, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	select {
	case ev := <-monitor.Events:
		if ev.TxSignature != "TX1" || ev.WalletAddr != "W1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a swap event forwarded from the websocket server")
	}
}

func TestWalletMonitorReconnectsAfterDialFailure(t *testing.T) {
	monitor := NewWalletMonitor("ws://127.0.0.1:1", 20*time.Millisecond, time.Minute, 4)

	var attempts int
	done := make(chan struct{})
	monitor.dialer = func(u string) (*websocket.Conn, error) {
		attempts++
		if attempts >= 2 {
			close(done)
		}
		return nil, errDialFailed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least 2 reconnect attempts after dial failures")
	}
}

var errDialFailed = dialError{}

type dialError struct{}

func (dialError) Error() string { return "dial failed" }
