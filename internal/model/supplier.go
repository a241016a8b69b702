package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SupplierStatus represents the operational state of a supplier.
type SupplierStatus string

const (
	SupplierActive    SupplierStatus = "active"
	SupplierInactive  SupplierStatus = "inactive"
	SupplierSuspended SupplierStatus = "suspended"
	SupplierPending   SupplierStatus = "pending"
)

// Supplier is a point-in-time snapshot of a supplier handed over by the
// upstream CRUD layer. The monitoring core consumes it by value and never
// owns supplier identity.
type Supplier struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Country   string         `json:"country"`
	Region    string         `json:"region,omitempty"`
	Industry  string         `json:"industry,omitempty"`
	Status    SupplierStatus `json:"status"`
	RiskScore float64        `json:"risk_score"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IsActive reports whether the supplier is in the active state.
func (s Supplier) IsActive() bool {
	return s.Status == SupplierActive
}

// SupplierFromRecord decodes a loosely typed snapshot record into a Supplier.
// Collaborators hand over []map[string]any; missing optional fields default,
// but id and risk_score are required.
func SupplierFromRecord(rec map[string]any) (Supplier, error) {
	id := stringField(rec, "id")
	if id == "" {
		return Supplier{}, fmt.Errorf("supplier record missing id")
	}

	score, ok := floatField(rec, "risk_score")
	if !ok {
		return Supplier{}, fmt.Errorf("supplier %s: missing risk_score", id)
	}
	if score < 0 || score > 100 {
		return Supplier{}, fmt.Errorf("supplier %s: risk_score %.1f outside [0,100]", id, score)
	}

	status := SupplierStatus(strings.ToLower(stringField(rec, "status")))
	if status == "" {
		status = SupplierActive
	}

	s := Supplier{
		ID:        id,
		Name:      stringField(rec, "name"),
		Country:   stringField(rec, "country"),
		Region:    stringField(rec, "region"),
		Industry:  stringField(rec, "industry"),
		Status:    status,
		RiskScore: score,
	}
	if s.Name == "" {
		s.Name = id
	}
	return s, nil
}

func stringField(rec map[string]any, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

func floatField(rec map[string]any, key string) (float64, bool) {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
