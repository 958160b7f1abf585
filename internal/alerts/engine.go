package alerts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/dosetrack/internal/config"
	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/pkg/models"
)

const (
	defaultCooldown = 6 * time.Hour
	alertRetention  = 7 * 24 * time.Hour
	cleanupInterval = time.Hour
)

// Engine evaluates level snapshots against range rules and manages alerts
type Engine struct {
	config    *config.AlertsConfig
	rules     map[string]*models.AlertRule
	alerts    map[string]*models.Alert
	active    map[string]*models.Alert // rule ID -> unresolved alert
	cooldowns map[string]time.Time     // rule ID -> last trigger time
	notifiers []Notifier
	onAlert   func(*models.Alert)
	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
}

// Notifier sends alert notifications
type Notifier interface {
	Name() string
	Notify(alert *models.Alert) error
}

// NewEngine creates an alerting engine from configured rules, falling back
// to the built-in target range when no rules are configured.
func NewEngine(cfg *config.AlertsConfig) *Engine {
	e := &Engine{
		config:    cfg,
		rules:     make(map[string]*models.AlertRule),
		alerts:    make(map[string]*models.Alert),
		active:    make(map[string]*models.Alert),
		cooldowns: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}

	for _, rc := range cfg.Rules {
		rule := &models.AlertRule{
			ID:       uuid.New().String(),
			Name:     rc.Name,
			Min:      rc.Min,
			Max:      rc.Max,
			Severity: parseSeverity(rc.Severity),
			Cooldown: rc.Cooldown,
			Enabled:  true,
		}
		e.rules[rule.ID] = rule
	}
	if len(e.rules) == 0 {
		for _, rule := range defaultRules() {
			e.rules[rule.ID] = rule
		}
	}

	return e
}

func defaultRules() []*models.AlertRule {
	lower := pk.TargetRangeLower
	upper := pk.TargetRangeUpper
	return []*models.AlertRule{
		{
			ID:       uuid.New().String(),
			Name:     "Level below target range",
			Min:      &lower,
			Severity: models.SeverityWarning,
			Cooldown: defaultCooldown,
			Enabled:  true,
		},
		{
			ID:       uuid.New().String(),
			Name:     "Level above target range",
			Max:      &upper,
			Severity: models.SeverityWarning,
			Cooldown: defaultCooldown,
			Enabled:  true,
		},
	}
}

func parseSeverity(s string) models.AlertSeverity {
	switch models.AlertSeverity(s) {
	case models.SeverityInfo:
		return models.SeverityInfo
	case models.SeverityCritical:
		return models.SeverityCritical
	default:
		return models.SeverityWarning
	}
}

// Start starts the background cleanup of old resolved alerts
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	go e.cleanupLoop(ctx)
	return nil
}

// Stop stops the alerting engine
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
}

// SetAlertCallback sets a callback invoked on every alert state change
func (e *Engine) SetAlertCallback(cb func(*models.Alert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = cb
}

// AddNotifier adds a notifier
func (e *Engine) AddNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, n)
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.cleanupResolvedAlerts()
		}
	}
}

func (e *Engine) cleanupResolvedAlerts() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-alertRetention)
	for id, alert := range e.alerts {
		if alert.State == models.AlertStateResolved && alert.StartedAt.Before(cutoff) {
			delete(e.alerts, id)
		}
	}
}

// ProcessSnapshot evaluates a level snapshot against all enabled rules,
// opening alerts for breached ranges and resolving alerts whose rule is
// back in range. Snapshots with no underlying data are ignored.
func (e *Engine) ProcessSnapshot(snap *models.LevelSnapshot) {
	if snap == nil {
		return
	}
	if snap.DoseCount == 0 && snap.TestCount == 0 {
		return
	}

	e.mu.Lock()

	var (
		opened   []*models.Alert
		resolved []*models.Alert
	)
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		breached := ruleBreached(rule, snap.Level)
		current, hasActive := e.active[rule.ID]

		switch {
		case breached && !hasActive:
			if last, ok := e.cooldowns[rule.ID]; ok && time.Since(last) < rule.Cooldown {
				continue
			}
			alert := &models.Alert{
				ID:        uuid.New().String(),
				RuleID:    rule.ID,
				RuleName:  rule.Name,
				Severity:  rule.Severity,
				State:     models.AlertStateActive,
				Level:     snap.Level,
				Message:   formatAlertMessage(rule, snap.Level),
				StartedAt: snap.Timestamp,
			}
			e.alerts[alert.ID] = alert
			e.active[rule.ID] = alert
			e.cooldowns[rule.ID] = time.Now()
			opened = append(opened, alert)

		case !breached && hasActive:
			now := time.Now()
			current.State = models.AlertStateResolved
			current.ResolvedAt = &now
			delete(e.active, rule.ID)
			resolved = append(resolved, current)
		}
	}

	notifiers := make([]Notifier, len(e.notifiers))
	copy(notifiers, e.notifiers)
	onAlert := e.onAlert
	e.mu.Unlock()

	for _, alert := range opened {
		for _, n := range notifiers {
			go func(n Notifier, a *models.Alert) {
				if err := n.Notify(a); err != nil {
					log.Printf("Alert notifier %s failed: %v", n.Name(), err)
				}
			}(n, alert)
		}
	}
	if onAlert != nil {
		for _, alert := range opened {
			go onAlert(alert)
		}
		for _, alert := range resolved {
			go onAlert(alert)
		}
	}
}

func ruleBreached(rule *models.AlertRule, level float64) bool {
	if rule.Min != nil && level < *rule.Min {
		return true
	}
	if rule.Max != nil && level > *rule.Max {
		return true
	}
	return false
}

func formatAlertMessage(rule *models.AlertRule, level float64) string {
	if rule.Min != nil && level < *rule.Min {
		return fmt.Sprintf("Estimated level %.1f pg/mL is below %.0f pg/mL", level, *rule.Min)
	}
	if rule.Max != nil && level > *rule.Max {
		return fmt.Sprintf("Estimated level %.1f pg/mL is above %.0f pg/mL", level, *rule.Max)
	}
	return fmt.Sprintf("Estimated level %.1f pg/mL breached rule %s", level, rule.Name)
}

// Acknowledge marks an active alert as acknowledged
func (e *Engine) Acknowledge(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if alert.State == models.AlertStateResolved {
		return ErrAlertResolved
	}

	now := time.Now()
	alert.State = models.AlertStateAcknowledged
	alert.AckedAt = &now
	return nil
}

// GetAlert retrieves an alert by ID
func (e *Engine) GetAlert(id string) (*models.Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	alert, ok := e.alerts[id]
	return alert, ok
}

// ListAlerts lists alerts, optionally filtered by state, newest first
func (e *Engine) ListAlerts(state models.AlertState) []*models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*models.Alert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		if state != "" && alert.State != state {
			continue
		}
		results = append(results, alert)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.After(results[j].StartedAt)
	})
	return results
}

// ListRules lists the configured alert rules
func (e *Engine) ListRules() []*models.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*models.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	return rules
}

// Errors
var (
	ErrAlertNotFound = &Error{Code: "ALERT_NOT_FOUND", Message: "Alert not found"}
	ErrAlertResolved = &Error{Code: "ALERT_RESOLVED", Message: "Alert is already resolved"}
)

// Error represents an alerting error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
