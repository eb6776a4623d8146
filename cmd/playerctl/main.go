// Package main provides the playback daemon client CLI for testing.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("playerctl", "Playback daemon client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()

	// play command
	playCmd       = app.Command("play", "Send a Play directive")
	playURL       = playCmd.Arg("url", "Stream URL").Required().String()
	playToken     = playCmd.Flag("token", "Stream token").String()
	playBehavior  = playCmd.Flag("behavior", "Play behavior").Default("REPLACE_ALL").Enum("REPLACE_ALL", "ENQUEUE", "REPLACE_ENQUEUED")
	playItemID    = playCmd.Flag("item-id", "Audio item ID").String()
	playOffsetMs  = playCmd.Flag("offset-ms", "Start offset in milliseconds").Int64()
	playPrevToken = playCmd.Flag("prev-token", "Expected previous token (used with ENQUEUE)").String()

	// stop command
	stopCmd = app.Command("stop", "Send a Stop directive")

	// clear command
	clearCmd      = app.Command("clear", "Send a ClearQueue directive")
	clearBehavior = clearCmd.Flag("behavior", "Clear behavior").Default("CLEAR_ENQUEUED").Enum("CLEAR_ENQUEUED", "CLEAR_ALL")

	// state command
	stateCmd = app.Command("state", "Print the current playback state")

	// watch command
	watchCmd = app.Command("watch", "Follow the outbound event stream")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case playCmd.FullCommand():
		play()
	case stopCmd.FullCommand():
		postDirective("Stop", map[string]any{})
	case clearCmd.FullCommand():
		postDirective("ClearQueue", map[string]any{"clearBehavior": *clearBehavior})
	case stateCmd.FullCommand():
		state()
	case watchCmd.FullCommand():
		watch()
	}
}

func play() {
	stream := map[string]any{
		"url":                  *playURL,
		"token":                *playToken,
		"offsetInMilliseconds": *playOffsetMs,
	}
	if *playPrevToken != "" {
		stream["expectedPreviousToken"] = *playPrevToken
	}
	payload := map[string]any{
		"playBehavior": *playBehavior,
		"audioItem": map[string]any{
			"audioItemId": *playItemID,
			"stream":      stream,
		},
	}
	postDirective("Play", payload)
}

func postDirective(name string, payload map[string]any) {
	body, err := json.Marshal(map[string]any{"name": name, "payload": payload})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(*server+"/api/v1/directives", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("Error: malformed response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusAccepted {
		fmt.Printf("Rejected [%d]: %s\n", resp.StatusCode, out["error"])
		os.Exit(1)
	}

	fmt.Printf("Accepted: messageId=%s\n", out["messageId"])
}

func state() {
	resp, err := http.Get(*server + "/api/v1/state")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var snap struct {
		Token                string `json:"token"`
		OffsetInMilliseconds int64  `json:"offsetInMilliseconds"`
		PlayerActivity       string `json:"playerActivity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fmt.Printf("Error: malformed response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Activity: %s\n", snap.PlayerActivity)
	fmt.Printf("Token:    %s\n", snap.Token)
	fmt.Printf("Offset:   %d ms\n", snap.OffsetInMilliseconds)
}

func watch() {
	resp, err := http.Get(*server + "/api/v1/events")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Println("Watching events. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nClosing stream...")
		os.Exit(0)
	}()

	// Receive events: each frame is "id:", "event:" and "data:" lines
	// followed by a blank line.
	var id, event, data string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			printEvent(id, event, data)
			id, event, data = "", "", ""
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printEvent(id, event, data string) {
	if event == "" {
		return
	}
	fmt.Printf("\n[%s] %s\n", id, event)

	var envelope struct {
		Event struct {
			Payload map[string]any `json:"payload"`
		} `json:"event"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		fmt.Printf("  %s\n", data)
		return
	}

	keys := make([]string, 0, len(envelope.Event.Payload))
	for k := range envelope.Event.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, envelope.Event.Payload[k])
	}
}
