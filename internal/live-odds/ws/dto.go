package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Sport: esporte de interesse; "*" recebe todos
type ClientMsg struct {
	Type  string `json:"type"`
	Sport string `json:"sport"`
}

// AllSports inscreve o cliente em avisos de qualquer esporte
const AllSports = "*"
