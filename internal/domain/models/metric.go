package models

import "time"

// PerformanceMetricSnapshot is one dated, immutable point of the analytics time series.
type PerformanceMetricSnapshot struct {
	ID                  string            `bson:"id" json:"id"`
	Key                 LedgerKey         `bson:"key" json:"-"`
	Date                string            `bson:"date" json:"date"`
	DailyWeightGain     float64           `bson:"daily_weight_gain" json:"dailyWeightGain"`
	FeedConversionRatio float64           `bson:"feed_conversion_ratio" json:"feedConversionRatio"`
	MortalityRate       float64           `bson:"mortality_rate" json:"mortalityRate"`
	FeedCostPerKg       float64           `bson:"feed_cost_per_kg" json:"feedCostPerKg"`
	ProfitMargin        float64           `bson:"profit_margin" json:"profitMargin"`
	CategorySpecific    *CategorySpecific `bson:"category_specific,omitempty" json:"categorySpecific,omitempty"`
	CreatedAt           time.Time         `bson:"created_at" json:"-"`
}

// CategorySpecific holds the figures only some livestock categories report.
type CategorySpecific struct {
	EggProduction *int     `bson:"egg_production,omitempty" json:"eggProduction,omitempty"`
	LayingRate    *float64 `bson:"laying_rate,omitempty" json:"layingRate,omitempty"`
	LitterSize    *float64 `bson:"litter_size,omitempty" json:"litterSize,omitempty"`
	WeaningRate   *float64 `bson:"weaning_rate,omitempty" json:"weaningRate,omitempty"`
}

// WeightSample is the average live weight observed on a given day.
type WeightSample struct {
	Date            time.Time `json:"date"`
	AverageWeightKg float64   `json:"averageWeightKg"`
}

// FeedInput describes feed usage for the observed period.
// ConsumedKg is measured per head, like the weight samples.
type FeedInput struct {
	ConsumedKg         float64 `json:"consumedKg"`
	DailyConsumptionKg float64 `json:"dailyConsumptionKg"`
	Cost               float64 `json:"cost"`
}

// EconomicInput carries the unit economics used for the profit margin.
type EconomicInput struct {
	RevenuePerUnit float64 `json:"revenuePerUnit"`
	CostPerUnit    float64 `json:"costPerUnit"`
}

// ProductionInput carries category-specific production counts.
type ProductionInput struct {
	EggsCollected *int `json:"eggsCollected,omitempty"`
	Litters       *int `json:"litters,omitempty"`
	PigletsBorn   *int `json:"pigletsBorn,omitempty"`
	PigletsWeaned *int `json:"pigletsWeaned,omitempty"`
}
