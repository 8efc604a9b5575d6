package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// rawActivity es un item de GET /activity. TRADE trae side y price; el resto
// (REDEEM, SPLIT, MERGE, REWARD, CONVERSION) suele venir sin asset ni outcome.
// Los numéricos llegan a veces como string JSON, usamos json.Number.
type rawActivity struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Timestamp       json.Number `json:"timestamp"`
	ConditionID     string      `json:"conditionId"`
	Type            string      `json:"type"`
	Size            json.Number `json:"size"`
	UsdcSize        json.Number `json:"usdcSize"`
	TransactionHash string      `json:"transactionHash"`
	Price           json.Number `json:"price"`
	Asset           string      `json:"asset"`
	Side            string      `json:"side"`
	OutcomeIndex    json.Number `json:"outcomeIndex"`
	Title           string      `json:"title"`
	Outcome         string      `json:"outcome"`
}

// --- CLOB API ---

// clobMarket es la respuesta de GET /markets/{condition_id}.
type clobMarket struct {
	ConditionID     string      `json:"condition_id"`
	QuestionID      string      `json:"question_id"`
	Question        string      `json:"question"`
	MarketSlug      string      `json:"market_slug"`
	Active          bool        `json:"active"`
	Closed          bool        `json:"closed"`
	NegRisk         bool        `json:"neg_risk"`
	NegRiskMarketID string      `json:"neg_risk_market_id"`
	Tokens          []clobToken `json:"tokens"`
}

// clobToken representa un outcome token en el CLOB.
type clobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata enriquecida de un mercado.
type gammaMarket struct {
	ConditionID     string `json:"conditionId"`
	Question        string `json:"question"`
	Slug            string `json:"slug"`
	NegRisk         bool   `json:"negRisk"`
	NegRiskMarketID string `json:"negRiskMarketID"`
	Closed          bool   `json:"closed"`
}
