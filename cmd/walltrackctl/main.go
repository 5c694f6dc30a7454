// Command walltrackctl is a one-shot operator CLI over walltrackd's
// Control/Query HTTP API (spec.md §6) — the non-interactive counterpart
// to the bubbletea dashboard, for scripting and quick terminal checks.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	base := envOrDefault("WALLTRACKCTL_ADDR", "http://localhost:8090")
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = printStatus(base)
	case "positions":
		err = printPositions(base)
	case "orders":
		err = printOrders(base, args)
	case "pause":
		err = postControl(base, "/control/pause", "system paused")
	case "resume":
		err = postControl(base, "/control/resume", "system resumed")
	case "cancel":
		err = requireID(args, func(id string) error {
			return postControl(base, "/control/orders/"+id+"/cancel", "order "+id+" cancelled")
		})
	case "retry":
		err = requireID(args, func(id string) error {
			return postControl(base, "/control/orders/"+id+"/retry", "order "+id+" queued for retry")
		})
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: walltrackctl <status|positions|orders|pause|resume|cancel <id>|retry <id>>")
}

func requireID(args []string, fn func(string) error) error {
	if len(args) < 1 {
		return fmt.Errorf("missing order id")
	}
	return fn(args[0])
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

type systemStateWire struct {
	State struct {
		Status      string `json:"Status"`
		PauseReason string `json:"PauseReason"`
		Version     int64  `json:"Version"`
	} `json:"state"`
}

func printStatus(base string) error {
	var wire systemStateWire
	if err := getJSON(base+"/query/system_state", &wire); err != nil {
		return err
	}

	fmt.Println("----------------------------------------")
	fmt.Println("SYSTEM STATUS")
	fmt.Println("----------------------------------------")
	switch wire.State.Status {
	case "Running":
		color.Green("status: %s", wire.State.Status)
	case "PausedManual", "PausedDrawdown", "PausedWinRate", "PausedConsecutiveLoss":
		color.Yellow("status: %s (%s)", wire.State.Status, wire.State.PauseReason)
	default:
		color.Red("status: %s", wire.State.Status)
	}
	fmt.Printf("version: %d\n", wire.State.Version)
	return nil
}

type positionWire struct {
	ID             string `json:"ID"`
	TokenAddress   string `json:"TokenAddress"`
	Status         string `json:"Status"`
	EntryAmountSOL string `json:"EntryAmountSOL"`
	RealizedPnLSOL string `json:"RealizedPnLSOL"`
}

func printPositions(base string) error {
	var wire struct {
		Positions []positionWire `json:"positions"`
	}
	if err := getJSON(base+"/query/positions", &wire); err != nil {
		return err
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("OPEN POSITIONS (%d)\n", len(wire.Positions))
	fmt.Println("----------------------------------------")
	for _, p := range wire.Positions {
		fmt.Printf("%s  %-10s  %-8s  entry=%s SOL  pnl=%s SOL\n", p.ID, p.TokenAddress, p.Status, p.EntryAmountSOL, p.RealizedPnLSOL)
	}
	return nil
}

type orderWire struct {
	ID       string `json:"ID"`
	Kind     string `json:"Kind"`
	Side     string `json:"Side"`
	Token    string `json:"TokenAddress"`
	Status   string `json:"Status"`
	LastErr  string `json:"LastError"`
	Attempts int    `json:"AttemptCount"`
}

func printOrders(base string, args []string) error {
	url := base + "/query/orders"
	if len(args) > 0 {
		url += "?status=" + strings.TrimSpace(args[0])
	}

	var wire struct {
		Orders []orderWire `json:"orders"`
	}
	if err := getJSON(url, &wire); err != nil {
		return err
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("ORDERS (%d)\n", len(wire.Orders))
	fmt.Println("----------------------------------------")
	for _, o := range wire.Orders {
		line := fmt.Sprintf("%s  %-5s %-4s  %-10s  %-10s  attempts=%d", o.ID, o.Kind, o.Side, o.Token, o.Status, o.Attempts)
		switch o.Status {
		case "Filled":
			color.Green(line)
		case "Failed", "Cancelled":
			color.Red("%s  %s", line, o.LastErr)
		default:
			fmt.Println(line)
		}
	}
	return nil
}

func postControl(base, path, okMsg string) error {
	req, err := http.NewRequest(http.MethodPost, base+path, strings.NewReader(`{"operator":"walltrackctl","acknowledge":true}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	color.Green(okMsg)
	return nil
}

func getJSON(url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
