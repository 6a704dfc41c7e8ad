/**
 * @description
 * This file exposes the hub over a websocket endpoint. Browser clients
 * connect once and then send join/leave commands naming the payment
 * reference (PRN) they want live updates for:
 *
 *   {"action": "join",  "prn": "..."}
 *   {"action": "leave", "prn": "..."}
 *
 * Push messages flow the other way with the envelope produced by
 * domain.StatusMessage. A closed connection detaches the client from every
 * group it joined.
 */

package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

type subscribeCommand struct {
	Action    string `json:"action"`
	Reference string `json:"prn"`
}

// Server upgrades HTTP requests to websocket subscriber connections.
type Server struct {
	hub            *Hub
	allowedOrigins map[string]bool
}

// NewServer creates a websocket server for the hub. An empty origin list
// permits same-host and localhost origins only.
func NewServer(h *Hub, allowedOrigins []string) *Server {
	s := &Server{
		hub:            h,
		allowedOrigins: make(map[string]bool),
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			s.allowedOrigins[trimmed] = true
		}
	}
	return s
}

// HandleWS upgrades the request and runs the client's read loop until the
// connection closes.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("level=warn component=hub msg=\"websocket upgrade failed\" remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	log.Printf("level=info component=hub msg=\"subscriber connected\" remote=%s", r.RemoteAddr)
	c := NewClient(conn)

	defer func() {
		s.hub.Detach(c)
		log.Printf("level=info component=hub msg=\"subscriber disconnected\" remote=%s", r.RemoteAddr)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd subscribeCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("level=warn component=hub msg=\"bad subscribe command\" remote=%s err=%v", r.RemoteAddr, err)
			continue
		}

		switch cmd.Action {
		case "join":
			s.hub.Join(cmd.Reference, c)
		case "leave":
			s.hub.Leave(cmd.Reference, c)
		default:
			log.Printf("level=warn component=hub msg=\"unknown subscribe action\" remote=%s action=%q", r.RemoteAddr, cmd.Action)
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin]
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	host := parsed.Host
	return host == "localhost" || strings.HasPrefix(host, "localhost:") ||
		host == "127.0.0.1" || strings.HasPrefix(host, "127.0.0.1:")
}
