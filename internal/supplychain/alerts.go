package supplychain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/chainwatch/internal/config"
	"github.com/sells-group/chainwatch/internal/model"
)

// AlertArchiver persists alerts that leave the in-memory set. Implemented
// by store backends; a nil archiver disables archiving.
type AlertArchiver interface {
	ArchiveAlert(ctx context.Context, a Alert) error
}

// AlertManager evaluates supplier snapshots against alert rules and tracks
// the resulting alerts through their lifecycle. Safe for concurrent use.
type AlertManager struct {
	mu      sync.RWMutex
	alerts  map[string]*Alert
	cfg     config.AlertsConfig
	archive AlertArchiver
	log     *zap.Logger
}

// NewAlertManager builds an alert manager. archive may be nil.
func NewAlertManager(cfg config.AlertsConfig, archive AlertArchiver) *AlertManager {
	return &AlertManager{
		alerts:  make(map[string]*Alert),
		cfg:     cfg,
		archive: archive,
		log:     zap.L().With(zap.String("component", "alerts")),
	}
}

// ProcessSuppliers evaluates each snapshot against the three rule families
// and returns the alerts created in this batch. Malformed snapshots are
// logged and skipped; one bad record never aborts the batch. A retention
// sweep runs after every batch.
func (m *AlertManager) ProcessSuppliers(ctx context.Context, records []map[string]any) []Alert {
	var created []Alert

	m.mu.Lock()
	for _, rec := range records {
		sup, err := model.SupplierFromRecord(rec)
		if err != nil {
			m.log.Warn("skipping malformed supplier record", zap.Error(err))
			continue
		}
		created = append(created, m.evaluateLocked(sup)...)
	}
	m.mu.Unlock()

	if len(created) > 0 {
		m.log.Info("alert batch processed",
			zap.Int("suppliers", len(records)),
			zap.Int("alerts_created", len(created)))
	}

	m.CleanupExpired(ctx)
	return created
}

// evaluateLocked runs all rule families for one supplier. Caller holds mu.
func (m *AlertManager) evaluateLocked(sup model.Supplier) []Alert {
	var out []Alert

	// Risk thresholds. The two rules are independent: a score past the
	// critical threshold raises both a high_risk and a critical_risk alert.
	if sup.RiskScore >= m.cfg.HighRiskThreshold {
		if a := m.raiseLocked(sup, TypeHighRisk, SeverityHigh, sup.RiskScore,
			fmt.Sprintf("Supplier %s risk score %.1f exceeds high threshold %.1f",
				sup.Name, sup.RiskScore, m.cfg.HighRiskThreshold)); a != nil {
			out = append(out, *a)
		}
	}
	if sup.RiskScore >= m.cfg.CriticalRiskThreshold {
		if a := m.raiseLocked(sup, TypeCriticalRisk, SeverityCritical, sup.RiskScore,
			fmt.Sprintf("Supplier %s risk score %.1f exceeds critical threshold %.1f",
				sup.Name, sup.RiskScore, m.cfg.CriticalRiskThreshold)); a != nil {
			out = append(out, *a)
		}
	}

	// Status rules.
	switch sup.Status {
	case model.SupplierSuspended:
		if a := m.raiseLocked(sup, TypeSupplierSuspended, SeverityHigh, 80,
			fmt.Sprintf("Supplier %s has been suspended", sup.Name)); a != nil {
			out = append(out, *a)
		}
	case model.SupplierInactive:
		if a := m.raiseLocked(sup, TypeSupplierInactive, SeverityMedium, 60,
			fmt.Sprintf("Supplier %s is inactive", sup.Name)); a != nil {
			out = append(out, *a)
		}
	}

	// Location rule.
	if m.isHighRiskCountry(sup.Country) {
		if a := m.raiseLocked(sup, TypeHighRiskCountry, SeverityHigh, 75,
			fmt.Sprintf("Supplier %s operates in high-risk country: %s",
				sup.Name, sup.Country)); a != nil {
			out = append(out, *a)
		}
	}

	return out
}

func (m *AlertManager) isHighRiskCountry(country string) bool {
	c := strings.ToLower(strings.TrimSpace(country))
	if c == "" {
		return false
	}
	for _, hr := range m.cfg.HighRiskCountries {
		if strings.Contains(c, strings.ToLower(hr)) {
			return true
		}
	}
	return false
}

// raiseLocked creates an alert unless an unresolved alert of the same type
// already exists for the supplier. Caller holds mu.
func (m *AlertManager) raiseLocked(sup model.Supplier, typ string, sev Severity, score float64, msg string) *Alert {
	for _, a := range m.alerts {
		if a.SupplierID == sup.ID && a.Type == typ &&
			(a.Status == AlertActive || a.Status == AlertAcknowledged) {
			return nil
		}
	}
	a := &Alert{
		ID:         fmt.Sprintf("alert_%s", uuid.NewString()[:12]),
		SupplierID: sup.ID,
		Type:       typ,
		Severity:   sev,
		Message:    msg,
		RiskScore:  score,
		Status:     AlertActive,
		CreatedAt:  time.Now().UTC(),
		Metadata: map[string]any{
			"supplier_name": sup.Name,
			"country":       sup.Country,
			"industry":      sup.Industry,
		},
	}
	m.alerts[a.ID] = a
	m.log.Info("alert raised",
		zap.String("alert_id", a.ID),
		zap.String("supplier_id", sup.ID),
		zap.String("type", typ),
		zap.String("severity", string(sev)))
	return a
}

// Acknowledge marks an Active alert as acknowledged. Returns false if the
// alert is unknown or not Active.
func (m *AlertManager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok || a.Status != AlertActive {
		return false
	}
	now := time.Now().UTC()
	a.Status = AlertAcknowledged
	a.AcknowledgedAt = &now
	m.log.Info("alert acknowledged", zap.String("alert_id", id))
	return true
}

// Resolve marks an alert as resolved. Acknowledged alerts always qualify;
// Active alerts qualify only under the fast-resolve policy.
func (m *AlertManager) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return false
	}
	switch a.Status {
	case AlertAcknowledged:
	case AlertActive:
		if !m.cfg.FastResolve {
			return false
		}
	default:
		return false
	}
	now := time.Now().UTC()
	a.Status = AlertResolved
	a.ResolvedAt = &now
	m.log.Info("alert resolved", zap.String("alert_id", id))
	return true
}

// Get returns an alert by id.
func (m *AlertManager) Get(id string) (Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// List returns alerts matching the filter, newest first.
func (m *AlertManager) List(f Filter) []Alert {
	m.mu.RLock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if f.matches(*a) {
			out = append(out, *a)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// ActiveAlerts returns all Active alerts, newest first.
func (m *AlertManager) ActiveAlerts() []Alert {
	return m.List(Filter{Status: AlertActive})
}

// CleanupExpired expires Active alerts older than the retention window and
// removes Expired alerts from the working set, handing them to the archiver
// when one is configured. Resolved alerts stay in the set so the resolution
// rate keeps its denominator; they are archived and removed only once their
// resolution itself ages past retention. Returns the removed alerts.
func (m *AlertManager) CleanupExpired(ctx context.Context) []Alert {
	cutoff := time.Now().UTC().Add(-m.cfg.Retention())

	m.mu.Lock()
	var removed []Alert
	for id, a := range m.alerts {
		if a.Status == AlertActive && a.CreatedAt.Before(cutoff) {
			a.Status = AlertExpired
		}
		switch {
		case a.Status == AlertExpired:
			removed = append(removed, *a)
			delete(m.alerts, id)
		case a.Status == AlertResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff):
			removed = append(removed, *a)
			delete(m.alerts, id)
		}
	}
	m.mu.Unlock()

	if m.archive != nil {
		for _, a := range removed {
			if err := m.archive.ArchiveAlert(ctx, a); err != nil {
				m.log.Warn("failed to archive alert",
					zap.String("alert_id", a.ID), zap.Error(err))
			}
		}
	}
	if len(removed) > 0 {
		m.log.Info("alert retention sweep", zap.Int("removed", len(removed)))
	}
	return removed
}

// Statistics summarizes the current alert population.
func (m *AlertManager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		ByStatus:   make(map[AlertStatus]int),
		ByType:     make(map[string]int),
		BySeverity: make(map[Severity]int),
	}
	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	resolved := 0
	for _, a := range m.alerts {
		stats.TotalAlerts++
		stats.ByStatus[a.Status]++
		stats.ByType[a.Type]++
		stats.BySeverity[a.Severity]++
		if a.Status == AlertActive {
			stats.ActiveAlerts++
		}
		if a.Status == AlertResolved {
			resolved++
		}
		if a.CreatedAt.After(dayAgo) {
			stats.RecentAlerts++
		}
	}
	stats.AlertRate24h = stats.RecentAlerts
	if stats.TotalAlerts > 0 {
		stats.ResolutionRate = float64(resolved) / float64(stats.TotalAlerts)
	}
	return stats
}

// SummarizeSupplier reports alert activity for one supplier.
func (m *AlertManager) SummarizeSupplier(supplierID string) SupplierSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := SupplierSummary{
		SupplierID: supplierID,
		ByStatus:   make(map[AlertStatus]int),
		BySeverity: make(map[Severity]int),
	}
	weekAgo := time.Now().UTC().Add(-7 * 24 * time.Hour)
	for _, a := range m.alerts {
		if a.SupplierID != supplierID {
			continue
		}
		sum.TotalAlerts++
		sum.ByStatus[a.Status]++
		sum.BySeverity[a.Severity]++
		if a.Status == AlertActive {
			sum.ActiveAlerts++
		}
		if a.CreatedAt.After(weekAgo) {
			sum.Recent7d++
		}
		if sum.LastAlert == nil || a.CreatedAt.After(*sum.LastAlert) {
			t := a.CreatedAt
			sum.LastAlert = &t
		}
	}
	return sum
}

// Trends buckets alert volume by day over the trailing window and labels
// the direction by comparing the two halves of the period.
func (m *AlertManager) Trends(days int) Trend {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	m.mu.RLock()
	daily := make(map[string]int)
	total := 0
	for _, a := range m.alerts {
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		daily[a.CreatedAt.Format("2006-01-02")]++
		total++
	}
	m.mu.RUnlock()

	tr := Trend{
		DailyCounts: daily,
		TotalAlerts: total,
		PeriodDays:  days,
	}
	if total == 0 {
		tr.Direction = "no_data"
		return tr
	}
	tr.AverageDaily = float64(total) / float64(days)

	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	half := len(keys) / 2
	first, second := 0, 0
	for i, k := range keys {
		if i < half {
			first += daily[k]
		} else {
			second += daily[k]
		}
	}
	switch {
	case half == 0 || first == second:
		tr.Direction = "stable"
	case second > first:
		tr.Direction = "increasing"
	default:
		tr.Direction = "decreasing"
	}
	return tr
}
