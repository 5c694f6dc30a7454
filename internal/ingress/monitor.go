package ingress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

// WalletMonitor is an outbound gorilla/websocket client streaming swap
// events for a set of monitored wallets. It reconnects with a fixed
// delay on any read/dial failure and forwards every decoded event to
// Events, mirroring the webhook's non-blocking-send and dedup-at-C3
// contract.
type WalletMonitor struct {
	url              string
	reconnectDelay   time.Duration
	pingInterval     time.Duration
	Events           chan domain.SwapEvent
	dialer           func(url string) (*websocket.Conn, error)
}

// NewWalletMonitor builds a WalletMonitor dialing url.
func NewWalletMonitor(url string, reconnectDelay, pingInterval time.Duration, bufferSize int) *WalletMonitor {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &WalletMonitor{
		url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval,
		Events: make(chan domain.SwapEvent, bufferSize),
		dialer: func(u string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(u, nil)
			return conn, err
		},
	}
}

// wireSwapMessage is the shape a wallet-monitor push message decodes into.
type wireSwapMessage struct {
	TxSignature string `json:"tx_signature"`
	WalletAddr  string `json:"wallet_address"`
	TokenAddr   string `json:"token_address"`
	Direction   string `json:"direction"`
	AmountToken string `json:"amount_token"`
	AmountSOL   string `json:"amount_sol"`
	Slot        uint64 `json:"slot"`
	BlockTime   int64  `json:"block_time"`
}

// Run dials url and reads swap messages until ctx is cancelled,
// reconnecting after reconnectDelay on any failure.
func (m *WalletMonitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := m.dialer(m.url)
		if err != nil {
			log.Error().Err(err).Str("url", m.url).Msg("wallet monitor: dial failed, retrying")
			if !sleepOrDone(ctx, m.reconnectDelay) {
				return
			}
			continue
		}

		m.readLoop(ctx, conn)
		conn.Close()

		if !sleepOrDone(ctx, m.reconnectDelay) {
			return
		}
	}
}

func (m *WalletMonitor) readLoop(ctx context.Context, conn *websocket.Conn) {
	pinger := time.NewTicker(m.pingInterval)
	defer pinger.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wireSwapMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Warn().Err(err).Msg("wallet monitor: malformed swap message")
				continue
			}
			event, err := wireToSwapEvent(msg)
			if err != nil {
				log.Warn().Err(err).Str("tx", msg.TxSignature).Msg("wallet monitor: undecodable swap message")
				continue
			}
			select {
			case m.Events <- event:
			default:
				log.Warn().Str("tx", event.TxSignature).Msg("wallet monitor: swap event channel full, dropping event")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-pinger.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func wireToSwapEvent(msg wireSwapMessage) (domain.SwapEvent, error) {
	amountToken, err := decimal.NewFromString(msg.AmountToken)
	if err != nil {
		return domain.SwapEvent{}, err
	}
	amountSOL, err := decimal.NewFromString(msg.AmountSOL)
	if err != nil {
		return domain.SwapEvent{}, err
	}
	direction := domain.DirectionBuy
	if msg.Direction == string(domain.DirectionSell) {
		direction = domain.DirectionSell
	}
	return domain.SwapEvent{
		TxSignature: msg.TxSignature,
		WalletAddr:  msg.WalletAddr,
		TokenAddr:   msg.TokenAddr,
		Direction:   direction,
		AmountToken: amountToken,
		AmountSOL:   amountSOL,
		Slot:        msg.Slot,
		BlockTime:   time.Unix(msg.BlockTime, 0).UTC(),
	}, nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
