package main

// AIName is the identity the AI opponent plays under.
const AIName = "Bot"

// Conn is the outbound side of one client connection.
type Conn interface {
	Send(msgType string, payload any)
}

// Player is one seat in a game. The AI seat carries no connection and
// is dispatched on IsAI, never on Conn being nil: a human seat also
// loses its Conn while its owner is in the reconnect grace window.
type Player struct {
	Identity string
	Ordinal  int
	IsAI     bool
	Conn     Conn
}

func (p *Player) Mark() Cell {
	return CellForOrdinal(p.Ordinal)
}

func (p *Player) notify(msgType string, payload any) {
	if p.IsAI || p.Conn == nil {
		return
	}
	p.Conn.Send(msgType, payload)
}
