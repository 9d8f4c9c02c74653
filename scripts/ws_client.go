// Package main runs a demo WebSocket client for the schedule board feed.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/schedule/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "dispatcher")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	sub := wsMessage{Type: "subscribe", ID: "1"}
	if tech := os.Getenv("TECHNICIAN_ID"); tech != "" {
		sub.Payload, _ = json.Marshal(map[string]string{"technicianId": tech})
	}
	if err := c.WriteJSON(sub); err != nil {
		log.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "next":
			fmt.Printf("event: %s\n", string(msg.Payload))
		case "complete":
			log.Println("stream complete")
			return
		}
	}
}
