package guard

import (
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/pkg/models"
)

const scaleDownRateWindow = time.Hour

// ViolationError names the compliance constraint a decision broke.
type ViolationError struct {
	Constraint string
	Message    string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("compliance violation (%s): %s", e.Constraint, e.Message)
}

type downRecord struct {
	at      time.Time
	percent float64
}

// Guard is the final authority over every decision, manual overrides
// included. It clamps targets to instance bounds, enforces per-direction
// cooldowns (critical urgency bypasses cooldown, never bounds), the rolling
// one-hour scale-down rate, the large-change approval gate, and the
// per-availability-zone cap.
type Guard struct {
	limits models.ComplianceLimits
	clk    clock.Clock

	mu          sync.Mutex
	cooldowns   map[string]*models.CooldownState
	downHistory map[string][]downRecord
}

func NewGuard(limits models.ComplianceLimits, clk clock.Clock) *Guard {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Guard{
		limits:      limits,
		clk:         clk,
		cooldowns:   make(map[string]*models.CooldownState),
		downHistory: make(map[string][]downRecord),
	}
}

// Authorize validates a decision and returns the (possibly clamped) decision
// to execute, or a ViolationError. A rejected decision never reaches the
// execution adapter.
func (g *Guard) Authorize(decision *models.ScalingDecision) (*models.ScalingDecision, error) {
	authorized := *decision
	authorized.TargetInstances = g.limits.Clamp(decision.TargetInstances)

	if authorized.Direction == models.DirectionMaintain || authorized.TargetInstances == authorized.CurrentInstances {
		authorized.Direction = models.DirectionMaintain
		authorized.TargetInstances = authorized.CurrentInstances
		return &authorized, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()

	if err := g.checkCooldown(&authorized, now); err != nil {
		return nil, err
	}
	if err := g.checkScaleDownRate(&authorized, now); err != nil {
		return nil, err
	}
	if err := g.checkLargeScale(&authorized); err != nil {
		return nil, err
	}
	if err := g.checkZoneCap(&authorized); err != nil {
		return nil, err
	}

	return &authorized, nil
}

func (g *Guard) checkCooldown(d *models.ScalingDecision, now time.Time) error {
	if d.Urgency == models.UrgencyCritical {
		// Emergency override bypasses cooldown, not bounds
		logger.WithService(d.Service).Warn("Critical urgency: cooldown bypassed")
		return nil
	}

	state, ok := g.cooldowns[d.Service]
	if !ok {
		return nil
	}

	switch d.Direction {
	case models.DirectionScaleUp:
		if !state.LastScaleUpAt.IsZero() {
			if elapsed := now.Sub(state.LastScaleUpAt); elapsed < g.limits.ScaleUpCooldown {
				return &ViolationError{
					Constraint: "scale_up_cooldown",
					Message: fmt.Sprintf("last scale-up %s ago, cooldown %s",
						elapsed.Round(time.Second), g.limits.ScaleUpCooldown),
				}
			}
		}
	case models.DirectionScaleDown:
		if !state.LastScaleDownAt.IsZero() {
			if elapsed := now.Sub(state.LastScaleDownAt); elapsed < g.limits.ScaleDownCooldown {
				return &ViolationError{
					Constraint: "scale_down_cooldown",
					Message: fmt.Sprintf("last scale-down %s ago, cooldown %s",
						elapsed.Round(time.Second), g.limits.ScaleDownCooldown),
				}
			}
		}
	}
	return nil
}

// checkScaleDownRate bounds the total percentage reduction over a rolling
// one-hour window.
func (g *Guard) checkScaleDownRate(d *models.ScalingDecision, now time.Time) error {
	if d.Direction != models.DirectionScaleDown || d.CurrentInstances == 0 {
		return nil
	}

	history := g.pruneHistory(d.Service, now)
	var accumulated float64
	for _, rec := range history {
		accumulated += rec.percent
	}

	reduction := float64(d.CurrentInstances-d.TargetInstances) / float64(d.CurrentInstances) * 100
	if accumulated+reduction > g.limits.MaxScaleDownRatePercent {
		return &ViolationError{
			Constraint: "max_scale_down_rate",
			Message: fmt.Sprintf("%.1f%% reduction would exceed %.1f%% in rolling hour (%.1f%% already used)",
				reduction, g.limits.MaxScaleDownRatePercent, accumulated),
		}
	}
	return nil
}

func (g *Guard) checkLargeScale(d *models.ScalingDecision) error {
	if g.limits.LargeScaleApprovalDelta <= 0 {
		return nil
	}
	delta := d.TargetInstances - d.CurrentInstances
	if delta < 0 {
		delta = -delta
	}
	if delta > g.limits.LargeScaleApprovalDelta {
		return &ViolationError{
			Constraint: "large_scale_approval",
			Message: fmt.Sprintf("change of %d instances exceeds auto-approval limit %d, external approval required",
				delta, g.limits.LargeScaleApprovalDelta),
		}
	}
	return nil
}

// checkZoneCap assumes even spread across configured zones.
func (g *Guard) checkZoneCap(d *models.ScalingDecision) error {
	zones := len(g.limits.Zones)
	if zones == 0 || g.limits.MaxInstancesPerZone <= 0 {
		return nil
	}
	perZone := (d.TargetInstances + zones - 1) / zones
	if perZone > g.limits.MaxInstancesPerZone {
		return &ViolationError{
			Constraint: "zone_cap",
			Message: fmt.Sprintf("%d instances across %d zones puts %d per zone, cap is %d",
				d.TargetInstances, zones, perZone, g.limits.MaxInstancesPerZone),
		}
	}
	return nil
}

// RecordScale updates cooldown state and the scale-down history after an
// execution attempt. It must be called for every attempt issued to the
// adapter, regardless of outcome.
func (g *Guard) RecordScale(decision *models.ScalingDecision) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	state, ok := g.cooldowns[decision.Service]
	if !ok {
		state = &models.CooldownState{}
		g.cooldowns[decision.Service] = state
	}

	switch decision.Direction {
	case models.DirectionScaleUp:
		state.LastScaleUpAt = now
	case models.DirectionScaleDown:
		state.LastScaleDownAt = now
		if decision.CurrentInstances > 0 {
			percent := float64(decision.CurrentInstances-decision.TargetInstances) / float64(decision.CurrentInstances) * 100
			g.downHistory[decision.Service] = append(g.pruneHistory(decision.Service, now), downRecord{at: now, percent: percent})
		}
	}
}

func (g *Guard) pruneHistory(service string, now time.Time) []downRecord {
	history := g.downHistory[service]
	pruned := history[:0]
	for _, rec := range history {
		if now.Sub(rec.at) <= scaleDownRateWindow {
			pruned = append(pruned, rec)
		}
	}
	g.downHistory[service] = pruned
	return pruned
}

// CooldownState returns a copy of the service's cooldown state.
func (g *Guard) CooldownState(service string) models.CooldownState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state, ok := g.cooldowns[service]; ok {
		return *state
	}
	return models.CooldownState{}
}

// CooldownRemaining reports time left before each direction is allowed again.
func (g *Guard) CooldownRemaining(service string) (scaleUp, scaleDown time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.cooldowns[service]
	if !ok {
		return 0, 0
	}

	now := g.clk.Now()
	if !state.LastScaleUpAt.IsZero() {
		if remaining := g.limits.ScaleUpCooldown - now.Sub(state.LastScaleUpAt); remaining > 0 {
			scaleUp = remaining
		}
	}
	if !state.LastScaleDownAt.IsZero() {
		if remaining := g.limits.ScaleDownCooldown - now.Sub(state.LastScaleDownAt); remaining > 0 {
			scaleDown = remaining
		}
	}
	return scaleUp, scaleDown
}

// Limits exposes the configured compliance limits (read-only).
func (g *Guard) Limits() models.ComplianceLimits {
	return g.limits
}
