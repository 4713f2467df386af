package spike

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

const (
	arrowUp   = "↑"
	arrowDown = "↓"
)

// FormatAlert renders e.g. "↑ BTC  12.0% in the past day".
func FormatAlert(symbol string, period domain.Period, change float64) string {
	arrow := arrowUp
	if change < 0 {
		arrow = arrowDown
	}
	return fmt.Sprintf("%s %s %5.1f%% in the past %s", arrow, symbol, math.Abs(change), period)
}

// FormatCalm renders the line emitted when a spike subsides.
func FormatCalm(symbol string, period domain.Period) string {
	return fmt.Sprintf("• %s spike over (past %s)", symbol, period)
}
