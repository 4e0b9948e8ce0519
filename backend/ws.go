package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server wires one websocket connection into the session registry,
// matchmaking queue, and game manager.
type Server struct {
	sessions   *SessionRegistry
	matchmaker *Matchmaker
	games      *GameManager
}

func NewServer(sessions *SessionRegistry, matchmaker *Matchmaker, games *GameManager) *Server {
	return &Server{sessions: sessions, matchmaker: matchmaker, games: games}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newClient(conn)
	go client.writeLoop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.handleTransportLoss(client)
			client.stop()
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Send("error", errorPayload{Message: "malformed message"})
			continue
		}
		s.dispatch(client, msg)
	}
}

func (s *Server) dispatch(client *Client, msg wsMessage) {
	switch msg.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Username == "" {
			client.Send("error", errorPayload{Message: "join requires a username"})
			return
		}
		if err := s.sessions.Register(payload.Username, client, ""); err != nil {
			if errors.Is(err, ErrDuplicateActiveSession) {
				client.Send("error", errorPayload{Message: err.Error()})
				return
			}
			client.Send("error", errorPayload{Message: "login failed"})
			return
		}
		client.identity = payload.Username
		s.matchmaker.Join(payload.Username, client)

	case "make_move":
		if client.identity == "" {
			client.Send("error", errorPayload{Message: "join before making moves"})
			return
		}
		var payload movePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			client.Send("error", errorPayload{Message: "malformed move"})
			return
		}
		s.games.ApplyMove(payload.GameID, client.identity, payload.Column)

	case "reconnect":
		var payload reconnectPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Username == "" {
			client.Send("reconnect_failed", reconnectFailedPayload{Message: "reconnect requires a username"})
			return
		}
		if s.games.HandleReconnect(payload.Username, client) {
			client.identity = payload.Username
		}

	case "request_rematch":
		if client.identity == "" {
			client.Send("error", errorPayload{Message: "join before requesting a rematch"})
			return
		}
		var payload rematchRequestPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Opponent == "" {
			client.Send("error", errorPayload{Message: "malformed rematch request"})
			return
		}
		s.games.RequestRematch(client.identity, client, payload.Opponent)

	case "respond_rematch":
		if client.identity == "" {
			client.Send("error", errorPayload{Message: "join before responding to a rematch"})
			return
		}
		var payload rematchResponsePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			client.Send("error", errorPayload{Message: "malformed rematch response"})
			return
		}
		s.games.RespondRematch(payload.From, client.identity, payload.Accept, client)

	default:
		client.Send("error", errorPayload{Message: "unknown message type: " + msg.Type})
	}
}

func (s *Server) handleTransportLoss(client *Client) {
	if client.identity == "" {
		return
	}
	if session, ok := s.sessions.Peek(client.identity); ok && session.Conn != nil && session.Conn != Conn(client) {
		// Another connection already took the session over (tab switch).
		return
	}
	log.Printf("[ws] transport lost for %s", client.identity)
	s.matchmaker.HandleDisconnect(client.identity)
	s.games.HandleDisconnect(client.identity)
}
