package ws

// ClientMsg é o que o cliente WebSocket manda
// Type: snapshot | ping
type ClientMsg struct {
	Type string `json:"type"`
}

// ServerMsg embrulha o que vai para o cliente
type ServerMsg struct {
	Type    string      `json:"type"` // view | pong
	Payload interface{} `json:"payload,omitempty"`
}
