package main

import "encoding/json"

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound payloads.

type joinPayload struct {
	Username string `json:"username"`
}

type movePayload struct {
	GameID string `json:"gameId"`
	Column int    `json:"column"`
}

type reconnectPayload struct {
	Username string `json:"username"`
}

type rematchRequestPayload struct {
	Username string `json:"username"`
	Opponent string `json:"opponent"`
}

type rematchResponsePayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Accept bool   `json:"accept"`
}

// Outbound payloads.

type waitingPayload struct {
	Message string `json:"message"`
}

type matchFoundPayload struct {
	GameID   string `json:"gameId"`
	Opponent string `json:"opponent"`
	Turn     int    `json:"turn"`
}

type turnUpdatePayload struct {
	YourTurn bool `json:"isYourTurn"`
}

type boardUpdatePayload struct {
	Board [][]int `json:"board"`
}

type invalidMovePayload struct {
	Reason string `json:"reason"`
}

type matchOverPayload struct {
	Winner string `json:"winner"`
}

type opponentDisconnectedPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type opponentRejoinedPayload struct {
	Username string `json:"username"`
}

type rejoinedPayload struct {
	GameID   string  `json:"gameId"`
	Board    [][]int `json:"board"`
	YourTurn bool    `json:"isYourTurn"`
}

type reconnectFailedPayload struct {
	Message string `json:"message"`
}

type rematchRequestedPayload struct {
	From string `json:"from"`
}

type rematchDeclinedPayload struct {
	By string `json:"by"`
}

type rematchUnavailablePayload struct {
	Message string `json:"message"`
}

type rematchStartedPayload struct {
	GameID string `json:"gameId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
