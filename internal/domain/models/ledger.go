package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the persisted layout of OccurredAt.Date and metric dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the persisted layout of OccurredAt.Time.
	TimeLayout = "15:04"
)

// Category identifies the kind of livestock tracked by a ledger.
type Category string

const (
	CategoryLayers   Category = "layers"
	CategoryBroilers Category = "broilers"
	CategoryPigs     Category = "pigs"
)

// LedgerKey addresses one farm/category aggregate.
type LedgerKey struct {
	FarmID   string   `bson:"farm_id" json:"farm_id"`
	Category Category `bson:"category" json:"category"`
}

// Valid reports whether both parts of the key are populated.
func (k LedgerKey) Valid() bool {
	return strings.TrimSpace(k.FarmID) != "" && strings.TrimSpace(string(k.Category)) != ""
}

func (k LedgerKey) String() string {
	return fmt.Sprintf("%s/%s", k.FarmID, k.Category)
}

// EventKind encodes the direction of a stock change.
type EventKind string

const (
	EventInitial  EventKind = "initial"
	EventAddition EventKind = "addition"
	EventDeath    EventKind = "death"
	EventSale     EventKind = "sale"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventInitial, EventAddition, EventDeath, EventSale:
		return true
	}
	return false
}

// Inbound reports whether the kind introduces stock.
func (k EventKind) Inbound() bool {
	return k == EventInitial || k == EventAddition
}

// OccurredAt is the caller-supplied moment of an event, kept as date and time strings.
type OccurredAt struct {
	Date string `bson:"date" json:"date"`
	Time string `bson:"time" json:"time"`
}

// NewOccurredAt formats t into the persisted representation.
func NewOccurredAt(t time.Time) OccurredAt {
	return OccurredAt{Date: t.Format(DateLayout), Time: t.Format(TimeLayout)}
}

// Parse returns the instant described by o in UTC.
func (o OccurredAt) Parse() (time.Time, error) {
	if o.Date == "" || o.Time == "" {
		return time.Time{}, fmt.Errorf("occurredAt requires date and time")
	}
	return time.Parse(DateLayout+" "+TimeLayout, o.Date+" "+o.Time)
}

// Before orders two OccurredAt values; malformed values sort first.
func (o OccurredAt) Before(other OccurredAt) bool {
	a, errA := o.Parse()
	b, errB := other.Parse()
	switch {
	case errA != nil && errB != nil:
		return false
	case errA != nil:
		return true
	case errB != nil:
		return false
	}
	return a.Before(b)
}

// CostBreakdown attributes money to a stock event.
type CostBreakdown struct {
	Stock    float64 `bson:"stock" json:"stock"`
	Medicine float64 `bson:"medicine" json:"medicine"`
	Feed     float64 `bson:"feed" json:"feed"`
	Other    float64 `bson:"other" json:"other"`
}

// Total sums every category of the breakdown.
func (c CostBreakdown) Total() float64 {
	return c.Stock + c.Medicine + c.Feed + c.Other
}

// StockEvent is one immutable fact about a change in stock.
type StockEvent struct {
	ID             string         `bson:"id" json:"id"`
	Kind           EventKind      `bson:"kind" json:"kind"`
	Quantity       int            `bson:"quantity" json:"quantity"`
	OccurredAt     OccurredAt     `bson:"occurred_at" json:"occurredAt"`
	RemainingStock int            `bson:"remaining_stock" json:"remainingStock"`
	CostBreakdown  *CostBreakdown `bson:"cost_breakdown,omitempty" json:"costBreakdown,omitempty"`
}

// FarmLedger is the aggregate owning the event history of one farm/category.
// The cached counters are always derived from Events.
type FarmLedger struct {
	Key           LedgerKey    `bson:"key" json:"key"`
	Events        []StockEvent `bson:"events" json:"events"`
	CurrentStock  int          `bson:"current_stock" json:"currentStock"`
	TotalDeaths   int          `bson:"total_deaths" json:"totalDeaths"`
	MaxSampleSize int          `bson:"max_sample_size" json:"maxSampleSize"`
	MortalityRate float64      `bson:"mortality_rate" json:"mortalityRate"`
	Version       int64        `bson:"version" json:"version"`
	CreatedAt     time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `bson:"updated_at" json:"updatedAt"`
}

// NewFarmLedger returns an empty ledger for key.
func NewFarmLedger(key LedgerKey, now time.Time) FarmLedger {
	return FarmLedger{Key: key, Events: []StockEvent{}, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy so callers can stage changes without touching shared state.
func (l FarmLedger) Clone() FarmLedger {
	out := l
	out.Events = make([]StockEvent, len(l.Events))
	for i, ev := range l.Events {
		if ev.CostBreakdown != nil {
			cb := *ev.CostBreakdown
			ev.CostBreakdown = &cb
		}
		out.Events[i] = ev
	}
	return out
}
