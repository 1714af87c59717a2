package models

import "time"

// Sale is a completed sale transaction.
type Sale struct {
	ID            string     `bson:"id" json:"id"`
	Key           LedgerKey  `bson:"key" json:"-"`
	TransactionID string     `bson:"transaction_id,omitempty" json:"transactionId,omitempty"`
	Quantity      int        `bson:"quantity" json:"quantity"`
	PricePerUnit  float64    `bson:"price_per_unit" json:"pricePerUnit"`
	CostPerUnit   *float64   `bson:"cost_per_unit,omitempty" json:"costPerUnit,omitempty"`
	TotalAmount   float64    `bson:"total_amount" json:"totalAmount"`
	ProfitPerUnit float64    `bson:"profit_per_unit" json:"profitPerUnit"`
	TotalProfit   float64    `bson:"total_profit" json:"totalProfit"`
	OccurredAt    OccurredAt `bson:"occurred_at" json:"occurredAt"`
	CreatedAt     time.Time  `bson:"created_at" json:"-"`
}
