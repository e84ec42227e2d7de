package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/awaistahir/spotswitch/internal/engine"
)

const timeLayout = "Mon 2 Jan 2006 15:04"

// FormatPrice renders a cent/kWh price with two decimals
func FormatPrice(centPerKWh float64) string {
	return decimal.NewFromFloat(centPerKWh).Round(2).StringFixed(2)
}

// ScheduleMessage announces an armed window
func ScheduleMessage(w engine.CheapestWindow, loc *time.Location) string {
	return fmt.Sprintf("Power will be switched on %s and off %s. The average market price is %s cent/kWh.",
		w.Start.In(loc).Format(timeLayout), w.End.In(loc).Format(timeLayout), FormatPrice(w.AveragePrice()))
}

// AboveCeilingMessage reports a window that was not armed because of the
// price ceiling
func AboveCeilingMessage(w engine.CheapestWindow, ceiling float64) string {
	return fmt.Sprintf("The cheapest average price is %s cent/kWh, above the limit of %s cent/kWh. Power will not be switched on in this window.",
		FormatPrice(w.AveragePrice()), FormatPrice(ceiling))
}

// PowerMessage reports the result of a relay call
func PowerMessage(on bool, err error) string {
	state := "off"
	if on {
		state = "on"
	}
	if err != nil {
		return fmt.Sprintf("Power could not be switched %s: %v", state, err)
	}
	return fmt.Sprintf("Power has been switched %s.", state)
}

// AbortedMessage reports a recompute cycle that ended without a schedule
func AbortedMessage(err error) string {
	return fmt.Sprintf("No schedule was set because the price data could not be used: %v", err)
}
