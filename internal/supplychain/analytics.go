package supplychain

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/chainwatch/internal/config"
	"github.com/sells-group/chainwatch/internal/model"
)

// Analytics computes distribution statistics, composite supplier risk and
// an overall health score from the current supplier and alert populations.
// Populations are swapped in wholesale via SetData; a snapshot copy is
// taken so callers may reuse their slices.
type Analytics struct {
	mu        sync.RWMutex
	suppliers []model.Supplier
	alerts    []Alert
	cfg       config.AnalyticsConfig
	risk      *RiskTable
	log       *zap.Logger
}

// NewAnalytics builds an analytics engine over the given risk table.
// A nil table falls back to the built-in defaults.
func NewAnalytics(cfg config.AnalyticsConfig, table *RiskTable) *Analytics {
	if table == nil {
		table = DefaultRiskTable()
	}
	return &Analytics{
		cfg:  cfg,
		risk: table,
		log:  zap.L().With(zap.String("component", "analytics")),
	}
}

// SetData replaces the supplier and alert populations under analysis.
func (a *Analytics) SetData(suppliers []model.Supplier, alerts []Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.suppliers = append([]model.Supplier(nil), suppliers...)
	a.alerts = append([]Alert(nil), alerts...)
	a.log.Debug("analytics data refreshed",
		zap.Int("suppliers", len(suppliers)),
		zap.Int("alerts", len(alerts)))
}

// RiskDistribution describes risk score spread across suppliers.
type RiskDistribution struct {
	Buckets         map[string]int `json:"buckets"`
	Mean            float64        `json:"mean"`
	Median          float64        `json:"median"`
	Std             float64        `json:"std"`
	HighCount       int            `json:"high_count"`
	CriticalCount   int            `json:"critical_count"`
	HighPercent     float64        `json:"high_percent"`
	CriticalPercent float64        `json:"critical_percent"`
}

// GroupStats summarizes suppliers sharing one country or industry.
type GroupStats struct {
	Count       int     `json:"count"`
	AverageRisk float64 `json:"average_risk"`
}

// Health is the qualitative supply-chain health verdict.
type Health struct {
	Score           float64 `json:"score"`
	Band            string  `json:"band"`
	RiskComponent   float64 `json:"risk_component"`
	ActiveComponent float64 `json:"active_component"`
	AlertComponent  float64 `json:"alert_component"`
}

// Overview is the full analytics snapshot exposed to callers.
type Overview struct {
	SupplierCount int                   `json:"supplier_count"`
	OverallRisk   float64               `json:"overall_risk"`
	Risk          RiskDistribution      `json:"risk_distribution"`
	ByCountry     map[string]GroupStats `json:"geographic_distribution"`
	ByIndustry    map[string]GroupStats `json:"industry_distribution"`
	Alerts        Statistics            `json:"alert_statistics"`
	Health        Health                `json:"health"`
}

// RiskAnalysis breaks a supplier's composite risk into its factors.
type RiskAnalysis struct {
	SupplierID      string   `json:"supplier_id"`
	SupplierName    string   `json:"supplier_name"`
	BaseRisk        float64  `json:"base_risk"`
	LocationRisk    float64  `json:"location_risk"`
	AlertRisk       float64  `json:"alert_risk"`
	IndustryRisk    float64  `json:"industry_risk"`
	CompositeRisk   float64  `json:"composite_risk"`
	RiskLevel       string   `json:"risk_level"`
	Recommendations []string `json:"recommendations"`
}

// Insight is one notable condition surfaced by Insights.
type Insight struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ComputeOverview assembles the current analytics snapshot.
func (a *Analytics) ComputeOverview() Overview {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ov := Overview{
		SupplierCount: len(a.suppliers),
		Risk:          a.riskDistributionLocked(),
		ByCountry:     a.groupLocked(func(s model.Supplier) string { return DisplayCountry(s.Country) }),
		ByIndustry:    a.groupLocked(func(s model.Supplier) string { return displayIndustry(s.Industry) }),
		Alerts:        a.alertStatsLocked(),
		Health:        a.healthLocked(),
	}
	ov.OverallRisk = ov.Risk.Mean
	return ov
}

// HealthScore computes the overall supply-chain health verdict.
func (a *Analytics) HealthScore() Health {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.healthLocked()
}

func (a *Analytics) healthLocked() Health {
	if len(a.suppliers) == 0 {
		return Health{Band: "no_data"}
	}

	var riskSum float64
	active := 0
	for _, s := range a.suppliers {
		riskSum += s.RiskScore
		if s.IsActive() {
			active++
		}
	}
	meanRisk := riskSum / float64(len(a.suppliers))
	activeRatio := float64(active) / float64(len(a.suppliers))

	activeAlerts := 0
	for _, al := range a.alerts {
		if al.Status == AlertActive {
			activeAlerts++
		}
	}

	h := Health{
		RiskComponent:   100 - meanRisk,
		ActiveComponent: activeRatio * 100,
		AlertComponent:  math.Max(0, 100-5*float64(activeAlerts)),
	}
	h.Score = (h.RiskComponent + h.ActiveComponent + h.AlertComponent) / 3
	h.Band = healthBand(h.Score)
	return h
}

func healthBand(score float64) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	case score >= 20:
		return "poor"
	default:
		return "critical"
	}
}

// SupplierRiskAnalysis computes the weighted composite risk for one
// supplier and recommendations keyed off the dominant factor.
func (a *Analytics) SupplierRiskAnalysis(supplierID string) (RiskAnalysis, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var sup *model.Supplier
	for i := range a.suppliers {
		if a.suppliers[i].ID == supplierID {
			sup = &a.suppliers[i]
			break
		}
	}
	if sup == nil {
		return RiskAnalysis{}, false
	}

	ra := RiskAnalysis{
		SupplierID:   sup.ID,
		SupplierName: sup.Name,
		BaseRisk:     sup.RiskScore,
		LocationRisk: a.risk.CountryRisk(sup.Country),
		AlertRisk:    a.alertPenaltyLocked(sup.ID),
		IndustryRisk: a.risk.IndustryRisk(sup.Industry),
	}
	ra.CompositeRisk = ra.BaseRisk*a.cfg.BaseWeight +
		ra.LocationRisk*a.cfg.LocationWeight +
		ra.AlertRisk*a.cfg.AlertWeight +
		ra.IndustryRisk*a.cfg.IndustryWeight
	ra.RiskLevel = a.riskLevel(ra.CompositeRisk)
	ra.Recommendations = a.recommendations(ra, *sup)
	return ra, true
}

// alertPenaltyLocked sums severity-weighted penalties for the supplier's
// unresolved alerts, capped at 100.
func (a *Analytics) alertPenaltyLocked(supplierID string) float64 {
	penalty := 0.0
	for _, al := range a.alerts {
		if al.SupplierID != supplierID {
			continue
		}
		if al.Status != AlertActive && al.Status != AlertAcknowledged {
			continue
		}
		switch al.Severity {
		case SeverityCritical:
			penalty += 25
		case SeverityHigh:
			penalty += 15
		case SeverityMedium:
			penalty += 10
		case SeverityLow:
			penalty += 5
		}
	}
	return math.Min(penalty, 100)
}

func (a *Analytics) riskLevel(score float64) string {
	switch {
	case score >= a.cfg.CriticalBand:
		return "critical"
	case score >= a.cfg.HighBand:
		return "high"
	case score >= a.cfg.MediumBand:
		return "medium"
	case score >= a.cfg.LowBand:
		return "low"
	default:
		return "minimal"
	}
}

func (a *Analytics) recommendations(ra RiskAnalysis, sup model.Supplier) []string {
	type factor struct {
		name  string
		value float64
	}
	factors := []factor{
		{"base", ra.BaseRisk},
		{"location", ra.LocationRisk},
		{"alert", ra.AlertRisk},
		{"industry", ra.IndustryRisk},
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].value > factors[j].value })

	var recs []string
	switch factors[0].name {
	case "base":
		recs = append(recs, "Conduct an on-site audit to validate the supplier's baseline risk drivers")
	case "location":
		recs = append(recs, fmt.Sprintf("Evaluate alternative sourcing outside %s to reduce geographic exposure", DisplayCountry(sup.Country)))
	case "alert":
		recs = append(recs, "Resolve outstanding alerts before expanding order volume with this supplier")
	case "industry":
		recs = append(recs, fmt.Sprintf("Apply enhanced due diligence appropriate to the %s sector", displayIndustry(sup.Industry)))
	}
	if ra.CompositeRisk >= a.cfg.HighBand {
		recs = append(recs, "Add this supplier to the elevated-monitoring watchlist")
	}
	if !sup.IsActive() {
		recs = append(recs, "Confirm supplier operational status before routing new orders")
	}
	return recs
}

// Insights surfaces concentration and alert-backlog conditions worth
// operator attention.
func (a *Analytics) Insights() []Insight {
	a.mu.RLock()
	defer a.mu.RUnlock()

	insights := []Insight{}
	if len(a.suppliers) == 0 {
		return insights
	}

	// Risk concentration.
	highRisk := 0
	for _, s := range a.suppliers {
		if s.RiskScore >= a.cfg.HighBand {
			highRisk++
		}
	}
	if frac := float64(highRisk) / float64(len(a.suppliers)); frac > 0.25 {
		insights = append(insights, Insight{
			Type:     "risk_concentration",
			Severity: "high",
			Message: fmt.Sprintf("%.0f%% of suppliers (%d of %d) carry high or critical risk scores",
				frac*100, highRisk, len(a.suppliers)),
		})
	}

	// Geographic concentration.
	byCountry := a.groupLocked(func(s model.Supplier) string { return DisplayCountry(s.Country) })
	for country, g := range byCountry {
		if frac := float64(g.Count) / float64(len(a.suppliers)); frac > 0.5 {
			insights = append(insights, Insight{
				Type:     "geographic_concentration",
				Severity: "medium",
				Message: fmt.Sprintf("%.0f%% of suppliers are concentrated in %s",
					frac*100, country),
			})
		}
	}

	// Unresolved alert backlog.
	unresolved := 0
	critical := 0
	for _, al := range a.alerts {
		if al.Status == AlertActive || al.Status == AlertAcknowledged {
			unresolved++
			if al.Severity == SeverityCritical {
				critical++
			}
		}
	}
	if critical > 0 {
		insights = append(insights, Insight{
			Type:     "critical_alerts",
			Severity: "critical",
			Message:  fmt.Sprintf("%d critical alerts are unresolved", critical),
		})
	}
	if unresolved > 10 {
		insights = append(insights, Insight{
			Type:     "alert_backlog",
			Severity: "medium",
			Message:  fmt.Sprintf("%d alerts remain unresolved", unresolved),
		})
	}
	return insights
}

func (a *Analytics) riskDistributionLocked() RiskDistribution {
	dist := RiskDistribution{Buckets: map[string]int{
		"minimal": 0, "low": 0, "medium": 0, "high": 0, "critical": 0,
	}}
	if len(a.suppliers) == 0 {
		return dist
	}

	scores := make([]float64, 0, len(a.suppliers))
	sum := 0.0
	for _, s := range a.suppliers {
		scores = append(scores, s.RiskScore)
		sum += s.RiskScore
		dist.Buckets[a.riskLevel(s.RiskScore)]++
		if s.RiskScore >= a.cfg.CriticalBand {
			dist.CriticalCount++
		} else if s.RiskScore >= a.cfg.HighBand {
			dist.HighCount++
		}
	}

	n := float64(len(scores))
	dist.Mean = sum / n

	variance := 0.0
	for _, v := range scores {
		d := v - dist.Mean
		variance += d * d
	}
	dist.Std = math.Sqrt(variance / n)

	sort.Float64s(scores)
	mid := len(scores) / 2
	if len(scores)%2 == 0 {
		dist.Median = (scores[mid-1] + scores[mid]) / 2
	} else {
		dist.Median = scores[mid]
	}

	dist.HighPercent = float64(dist.HighCount) / n * 100
	dist.CriticalPercent = float64(dist.CriticalCount) / n * 100
	return dist
}

func (a *Analytics) groupLocked(key func(model.Supplier) string) map[string]GroupStats {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range a.suppliers {
		k := key(s)
		counts[k]++
		sums[k] += s.RiskScore
	}
	out := make(map[string]GroupStats, len(counts))
	for k, c := range counts {
		out[k] = GroupStats{Count: c, AverageRisk: sums[k] / float64(c)}
	}
	return out
}

func (a *Analytics) alertStatsLocked() Statistics {
	stats := Statistics{
		ByStatus:   make(map[AlertStatus]int),
		ByType:     make(map[string]int),
		BySeverity: make(map[Severity]int),
	}
	resolved := 0
	for _, al := range a.alerts {
		stats.TotalAlerts++
		stats.ByStatus[al.Status]++
		stats.ByType[al.Type]++
		stats.BySeverity[al.Severity]++
		if al.Status == AlertActive {
			stats.ActiveAlerts++
		}
		if al.Status == AlertResolved {
			resolved++
		}
	}
	if stats.TotalAlerts > 0 {
		stats.ResolutionRate = float64(resolved) / float64(stats.TotalAlerts)
	}
	return stats
}

func displayIndustry(industry string) string {
	if industry == "" {
		return "Unknown"
	}
	return countryTitle.String(industry)
}
