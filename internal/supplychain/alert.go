// Package supplychain turns supplier snapshots into tracked alerts and
// aggregate analytics: threshold evaluation, an acknowledge/resolve
// lifecycle with retention-based expiry, and composite risk/health scoring.
package supplychain

import (
	"time"
)

// AlertStatus is the lifecycle state of an alert. Status only advances
// Active→Acknowledged→Resolved, or Active→Expired via the retention sweep.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertExpired      AlertStatus = "expired"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert types produced by the rule families.
const (
	TypeHighRisk          = "high_risk"
	TypeCriticalRisk      = "critical_risk"
	TypeSupplierSuspended = "supplier_suspended"
	TypeSupplierInactive  = "supplier_inactive"
	TypeHighRiskCountry   = "high_risk_country"
)

// Alert is one tracked risk condition for a supplier.
type Alert struct {
	ID             string         `json:"id"`
	SupplierID     string         `json:"supplier_id"`
	Type           string         `json:"alert_type"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	RiskScore      float64        `json:"risk_score"`
	Status         AlertStatus    `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Filter selects alerts in List. Zero fields match everything.
type Filter struct {
	SupplierID string      `json:"supplier_id,omitempty"`
	Type       string      `json:"alert_type,omitempty"`
	Severity   Severity    `json:"severity,omitempty"`
	Status     AlertStatus `json:"status,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

func (f Filter) matches(a Alert) bool {
	if f.SupplierID != "" && a.SupplierID != f.SupplierID {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// Statistics summarize the current alert population.
type Statistics struct {
	TotalAlerts    int                 `json:"total_alerts"`
	ActiveAlerts   int                 `json:"active_alerts"`
	RecentAlerts   int                 `json:"recent_alerts_24h"`
	ByStatus       map[AlertStatus]int `json:"status_distribution"`
	ByType         map[string]int      `json:"type_distribution"`
	BySeverity     map[Severity]int    `json:"severity_distribution"`
	AlertRate24h   int                 `json:"alert_rate_24h"`
	ResolutionRate float64             `json:"resolution_rate"`
}

// SupplierSummary summarizes alerts for a single supplier.
type SupplierSummary struct {
	SupplierID   string              `json:"supplier_id"`
	TotalAlerts  int                 `json:"total_alerts"`
	ActiveAlerts int                 `json:"active_alerts"`
	Recent7d     int                 `json:"recent_alerts_7d"`
	ByStatus     map[AlertStatus]int `json:"status_distribution"`
	BySeverity   map[Severity]int    `json:"severity_distribution"`
	LastAlert    *time.Time          `json:"last_alert,omitempty"`
}

// Trend describes alert volume over a trailing window.
type Trend struct {
	Direction    string         `json:"trend"` // increasing, decreasing, stable, no_data
	TotalAlerts  int            `json:"total_alerts"`
	DailyCounts  map[string]int `json:"daily_counts"`
	AverageDaily float64        `json:"average_daily"`
	PeriodDays   int            `json:"period_days"`
}
