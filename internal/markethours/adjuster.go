package markethours

import (
	"math"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/pkg/models"
)

// Adjuster scales a decision's recommended target by the market-hours
// profile: higher capacity around the opening and closing bells and over
// month/quarter end, lower over the lunch trough. Overlapping windows
// compose multiplicatively. The adjuster never overrides maintain and never
// bypasses the guard, which runs after it.
type Adjuster struct {
	profile models.FinancialProfile
	loc     *time.Location
	clk     clock.Clock
}

func NewAdjuster(profile models.FinancialProfile, clk clock.Clock) *Adjuster {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Adjuster{
		profile: profile,
		loc:     profile.Location(),
		clk:     clk,
	}
}

func (a *Adjuster) Adjust(decision *models.ScalingDecision) *models.ScalingDecision {
	if decision.Direction == models.DirectionMaintain {
		return decision
	}

	now := a.clk.Now().In(a.loc)
	multiplier := a.MultiplierAt(now)
	if multiplier == 1.0 {
		return decision
	}

	adjusted := *decision
	adjusted.TargetInstances = int(math.Round(float64(decision.TargetInstances) * multiplier))
	if adjusted.TargetInstances < 1 {
		adjusted.TargetInstances = 1
	}

	logger.WithService(decision.Service).Debugf(
		"Market-hours adjustment: target %d -> %d (multiplier %.2f)",
		decision.TargetInstances, adjusted.TargetInstances, multiplier,
	)
	return &adjusted
}

// MultiplierAt composes all windows active at the given wall-clock time.
func (a *Adjuster) MultiplierAt(now time.Time) float64 {
	multiplier := 1.0

	for _, w := range []models.SessionWindow{a.profile.OpeningBell, a.profile.ClosingBell, a.profile.Lunch} {
		if inSessionWindow(w, now) {
			multiplier *= w.Multiplier
		}
	}

	if inTrailingDays(now, a.profile.MonthEnd.TrailingDays) {
		multiplier *= a.profile.MonthEnd.Multiplier
	}
	if isQuarterEndMonth(now.Month()) && inTrailingDays(now, a.profile.QuarterEnd.TrailingDays) {
		multiplier *= a.profile.QuarterEnd.Multiplier
	}

	return multiplier
}

func inSessionWindow(w models.SessionWindow, now time.Time) bool {
	if w.Start == "" || w.Duration <= 0 || w.Multiplier <= 0 {
		return false
	}
	hour, minute, ok := parseClock(w.Start)
	if !ok {
		return false
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !now.Before(start) && now.Before(start.Add(w.Duration))
}

func inTrailingDays(now time.Time, trailing int) bool {
	if trailing <= 0 {
		return false
	}
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	return now.Day() > lastDay-trailing
}

func isQuarterEndMonth(m time.Month) bool {
	return m == time.March || m == time.June || m == time.September || m == time.December
}

func parseClock(s string) (hour, minute int, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
