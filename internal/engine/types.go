package engine

import (
	"fmt"
	"time"
)

// PriceNormalization converts market prices (EUR/MWh, i.e. tenths of a cent
// per kWh) into cent/kWh.
const PriceNormalization = 10.0

// PriceSlot represents one hourly market price period
type PriceSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Cost  float64   `json:"cost"` // EUR/MWh
}

// PriceSeries is an ordered run of price slots, ascending by start time
type PriceSeries []PriceSlot

// Validate checks that every slot has a positive length and that slots are
// ordered, contiguous and non-overlapping
func (s PriceSeries) Validate() error {
	for i, slot := range s {
		if !slot.End.After(slot.Start) {
			return fmt.Errorf("slot %d: end %s not after start %s: %w",
				i, slot.End.Format(time.RFC3339), slot.Start.Format(time.RFC3339), ErrInvalidSeries)
		}
		if i > 0 && !slot.Start.Equal(s[i-1].End) {
			return fmt.Errorf("slot %d: starts at %s, previous ends at %s: %w",
				i, slot.Start.Format(time.RFC3339), s[i-1].End.Format(time.RFC3339), ErrInvalidSeries)
		}
	}
	return nil
}

// CheapestWindow is the contiguous block of slots with the lowest total cost
type CheapestWindow struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	TotalCost float64   `json:"total_cost"`
	SlotCount int       `json:"slot_count"`
}

// AveragePrice returns the mean slot price of the window in cent/kWh
func (w CheapestWindow) AveragePrice() float64 {
	if w.SlotCount == 0 {
		return 0
	}
	return w.TotalCost / PriceNormalization / float64(w.SlotCount)
}
