package coinbase

import "encoding/json"

// --------------------------------------------------------------------------
// Coinbase v2 API DTOs
// --------------------------------------------------------------------------

// Money is an amount/currency pair. Amounts arrive as decimal strings.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// HistoricPrice is one sample of the historic prices endpoint.
type HistoricPrice struct {
	Price string `json:"price"`
	Time  string `json:"time"`
}

// SpotPrice is the body of the spot price endpoint.
type SpotPrice struct {
	Base     string `json:"base"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Account is a single wallet.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency json.RawMessage `json:"currency"`
	Balance  Money  `json:"balance"`
}

// Transaction is a ledger entry of a wallet.
type Transaction struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Amount    Money  `json:"amount"`
	CreatedAt string `json:"created_at"`
}

// Pagination is the cursor block of list endpoints.
type Pagination struct {
	NextURI string `json:"next_uri"`
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// ErrorResponse is the error body Coinbase returns on failure.
type ErrorResponse struct {
	Errors []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e ErrorResponse) String() string {
	if len(e.Errors) == 0 {
		return "no detail"
	}
	return e.Errors[0].Message + " (" + e.Errors[0].ID + ")"
}
