// Package performance derives dated performance metrics from a ledger and
// the weight, feed and economic inputs recorded for a period.
package performance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/ledger"
	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Input is everything a snapshot is computed from besides the ledger.
type Input struct {
	Date       string                  `json:"date"`
	Weights    []models.WeightSample   `json:"weights"`
	Feed       *models.FeedInput       `json:"feed,omitempty"`
	Economics  models.EconomicInput    `json:"economics"`
	Production *models.ProductionInput `json:"production,omitempty"`
}

// Validate rejects inputs that cannot describe a real period.
func (in Input) Validate() error {
	if _, err := time.Parse(models.DateLayout, in.Date); err != nil {
		return fmt.Errorf("%w: metric date %q", errs.ErrInvalidDateTime, in.Date)
	}
	for _, w := range in.Weights {
		if w.Date.IsZero() {
			return fmt.Errorf("%w: weight sample without date", errs.ErrInvalidDateTime)
		}
		if !finite(w.AverageWeightKg) || w.AverageWeightKg < 0 {
			return fmt.Errorf("%w: negative weight %v", errs.ErrInvalidQuantity, w.AverageWeightKg)
		}
	}
	if f := in.Feed; f != nil {
		for _, v := range []float64{f.ConsumedKg, f.DailyConsumptionKg, f.Cost} {
			if !finite(v) || v < 0 {
				return fmt.Errorf("%w: feed figures must be finite and >= 0", errs.ErrInvalidQuantity)
			}
		}
	}
	if !finite(in.Economics.RevenuePerUnit) || !finite(in.Economics.CostPerUnit) {
		return fmt.Errorf("%w: unit economics must be finite", errs.ErrInvalidPrice)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Compute builds the snapshot for in.Date from l as it is now. It does not
// assign an ID; the caller owns identity and persistence.
func Compute(l models.FarmLedger, in Input) (models.PerformanceMetricSnapshot, error) {
	if err := in.Validate(); err != nil {
		return models.PerformanceMetricSnapshot{}, err
	}

	stats := ledger.Reduce(l.Events)
	gain, days := weightGain(in.Weights)

	snap := models.PerformanceMetricSnapshot{
		Key:             l.Key,
		Date:            in.Date,
		DailyWeightGain: DailyWeightGain(in.Weights),
		MortalityRate:   stats.MortalityRate(),
		ProfitMargin:    ProfitMargin(in.Economics, in.Feed),
	}
	if in.Feed != nil {
		snap.FeedCostPerKg = FeedCostPerKg(in.Feed.Cost, in.Feed.DailyConsumptionKg)
		if days > 0 {
			snap.FeedConversionRatio = FeedConversionRatio(in.Feed.ConsumedKg, gain)
		}
	}
	snap.CategorySpecific = categorySpecific(l.Key.Category, stats, in.Production)
	return snap, nil
}

// DailyWeightGain is (latest - earliest) average weight over the days between
// the two samples; 0 with fewer than two samples or a zero day span.
func DailyWeightGain(samples []models.WeightSample) float64 {
	gain, days := weightGain(samples)
	if days <= 0 {
		return 0
	}
	return round(gain/days, 3)
}

// FeedConversionRatio is feed consumed per kg gained; 0 when nothing was gained or no feed is known.
func FeedConversionRatio(feedKg, gainKg float64) float64 {
	if gainKg <= 0 || feedKg <= 0 {
		return 0
	}
	return round(feedKg/gainKg, 2)
}

// FeedCostPerKg divides the feed cost by the daily consumption; 0 without consumption.
func FeedCostPerKg(feedCost, dailyConsumptionKg float64) float64 {
	if dailyConsumptionKg <= 0 || feedCost <= 0 {
		return 0
	}
	return round(feedCost/dailyConsumptionKg, 2)
}

// ProfitMargin is revenuePerUnit - (costPerUnit + feedCost).
func ProfitMargin(econ models.EconomicInput, feed *models.FeedInput) float64 {
	feedCost := decimal.Zero
	if feed != nil {
		feedCost = decimal.NewFromFloat(feed.Cost)
	}
	margin := decimal.NewFromFloat(econ.RevenuePerUnit).
		Sub(decimal.NewFromFloat(econ.CostPerUnit).Add(feedCost))
	return margin.Round(2).InexactFloat64()
}

func weightGain(samples []models.WeightSample) (gain float64, days float64) {
	if len(samples) < 2 {
		return 0, 0
	}
	sorted := make([]models.WeightSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	first, last := sorted[0], sorted[len(sorted)-1]
	days = last.Date.Sub(first.Date).Hours() / 24
	if days <= 0 {
		return 0, 0
	}
	return last.AverageWeightKg - first.AverageWeightKg, days
}

func categorySpecific(category models.Category, stats ledger.Stats, prod *models.ProductionInput) *models.CategorySpecific {
	if prod == nil {
		return nil
	}
	switch category {
	case models.CategoryLayers:
		if prod.EggsCollected == nil {
			return nil
		}
		eggs := *prod.EggsCollected
		rate := 0.0
		if stats.CurrentStock > 0 {
			rate = round(float64(eggs)/float64(stats.CurrentStock)*100, 1)
		}
		return &models.CategorySpecific{EggProduction: &eggs, LayingRate: &rate}
	case models.CategoryPigs:
		if prod.PigletsBorn == nil {
			return nil
		}
		born := *prod.PigletsBorn
		out := &models.CategorySpecific{}
		if prod.Litters != nil {
			size := 0.0
			if *prod.Litters > 0 {
				size = round(float64(born)/float64(*prod.Litters), 2)
			}
			out.LitterSize = &size
		}
		if prod.PigletsWeaned != nil {
			rate := 0.0
			if born > 0 {
				rate = round(float64(*prod.PigletsWeaned)/float64(born)*100, 1)
			}
			out.WeaningRate = &rate
		}
		return out
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
