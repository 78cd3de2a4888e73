package models

import "time"

// SessionWindow is a time-of-day window with a capacity multiplier. Start is
// "HH:MM" wall-clock time in the profile's timezone.
type SessionWindow struct {
	Start      string        `json:"start" mapstructure:"start"`
	Duration   time.Duration `json:"duration" mapstructure:"duration"`
	Multiplier float64       `json:"multiplier" mapstructure:"multiplier"`
}

// PeriodEndWindow raises capacity for the trailing days of a calendar period.
type PeriodEndWindow struct {
	TrailingDays int     `json:"trailing_days" mapstructure:"trailing_days"`
	Multiplier   float64 `json:"multiplier" mapstructure:"multiplier"`
}

// FinancialProfile is the market-hours schedule read by the adjuster.
// Static configuration; not mutated at runtime.
type FinancialProfile struct {
	Timezone    string          `json:"timezone" mapstructure:"timezone"`
	OpeningBell SessionWindow   `json:"opening_bell" mapstructure:"opening_bell"`
	ClosingBell SessionWindow   `json:"closing_bell" mapstructure:"closing_bell"`
	Lunch       SessionWindow   `json:"lunch" mapstructure:"lunch"`
	MonthEnd    PeriodEndWindow `json:"month_end" mapstructure:"month_end"`
	QuarterEnd  PeriodEndWindow `json:"quarter_end" mapstructure:"quarter_end"`
}

// Location resolves the profile's timezone, defaulting to UTC.
func (p FinancialProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
