package events

// LiveEvent é o registro completo de um evento ao vivo como chega pelo canal.
// O servidor sempre envia o registro inteiro; não existe atualização parcial de campos.
type LiveEvent struct {
	ID          FlexString  `json:"id"`
	Sport       string      `json:"sport"`
	CmpName     string      `json:"cmp_name,omitempty"` // nome da competição/liga
	T1          Team        `json:"t1"`                 // mandante
	T2          Team        `json:"t2"`                 // visitante
	Et          float64     `json:"et"`                 // tempo decorrido em segundos
	Stats       Stats       `json:"stats"`
	YellowCards *CardCount  `json:"yellow_cards,omitempty"`
	RedCards    *CardCount  `json:"red_cards,omitempty"`
	Odds        []OddsEntry `json:"odds"`
}

type Team struct {
	N string `json:"n"`
}

// Stats.A carrega o placar: A[0] mandante, A[1] visitante
type Stats struct {
	A []FlexString `json:"a"`
}

type CardCount struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// OddsEntry é uma linha de um mercado; o mesmo id pode aparecer várias vezes
// com handicaps (ha) diferentes.
type OddsEntry struct {
	ID int64        `json:"id"`
	Ha *float64     `json:"ha,omitempty"`
	O  []OddsOption `json:"o"`
}

type OddsOption struct {
	N string     `json:"n"`
	V FlexString `json:"v"`
}
