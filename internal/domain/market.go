package domain

import "time"

// MarketKey identifica un lado (outcome) de un mercado binario.
// Los strings son case-sensitive y no se normalizan.
type MarketKey struct {
	MarketID string
	Outcome  string
}

func (k MarketKey) String() string {
	return k.MarketID + ":" + k.Outcome
}

// MarketState es el último par (precio, probabilidad) observado para una key.
// Cada feed llena su campo de forma independiente; cualquiera de los dos
// puede faltar hasta que llegue el primer mensaje de su stream.
type MarketState struct {
	Price       float64
	HasPrice    bool
	Probability float64
	HasProb     bool
	LastUpdate  time.Time
}

// Complete devuelve true cuando ya llegaron precio y probabilidad.
func (s MarketState) Complete() bool {
	return s.HasPrice && s.HasProb
}

// PriceTick es un tick de precio del websocket del CLOB.
type PriceTick struct {
	MarketID string
	Outcome  string
	Price    float64
	Ts       time.Time
}

// ModelUpdate es una actualización de probabilidad del modelo externo.
type ModelUpdate struct {
	MarketID    string
	Outcome     string
	Probability float64
	League      string
	Team        string
	Ts          time.Time
}

// Resolution es el evento on-chain de resolución de un mercado (CTF
// ConditionResolution). WinningOutcome es el índice del payout ganador.
type Resolution struct {
	MarketID       string
	WinningOutcome string
	Ts             time.Time
}

// Transfer es un movimiento ERC20/ERC1155 observado para la wallet del bot.
type Transfer struct {
	Token  string
	From   string
	To     string
	Value  string
	TxHash string
	Ts     time.Time
}
