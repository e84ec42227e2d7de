package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData = errors.New("insufficient price data for requested duration")
	ErrInvalidSeries    = errors.New("invalid price series")
	ErrConfiguration    = errors.New("configuration error")
)

// FindCheapestWindow returns the contiguous run of slotCount slots with the
// lowest total cost. Among equal-cost runs the earliest one wins.
func FindCheapestWindow(series PriceSeries, slotCount int) (CheapestWindow, error) {
	if slotCount < 1 {
		return CheapestWindow{}, fmt.Errorf("slot count %d: %w", slotCount, ErrInsufficientData)
	}
	if len(series) < slotCount {
		return CheapestWindow{}, fmt.Errorf("need %d slots, got %d: %w", slotCount, len(series), ErrInsufficientData)
	}

	var best CheapestWindow
	found := false
	for i := 0; i+slotCount <= len(series); i++ {
		window := series[i : i+slotCount]

		total := 0.0
		for _, slot := range window {
			total += slot.Cost
		}

		// strict comparison keeps the earliest of equal-cost windows
		if !found || total < best.TotalCost {
			best = CheapestWindow{
				Start:     window[0].Start,
				End:       window[len(window)-1].End,
				TotalCost: total,
				SlotCount: slotCount,
			}
			found = true
		}
	}

	return best, nil
}
