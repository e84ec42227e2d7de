package engine

// WithinCeiling reports whether the window may be scheduled under an optional
// average price ceiling in cent/kWh. A nil ceiling allows every window.
func WithinCeiling(w CheapestWindow, ceiling *float64) bool {
	if ceiling == nil {
		return true
	}
	return w.AveragePrice() <= *ceiling
}
