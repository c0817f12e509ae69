package types

import (
	"testing"
)

func TestPressureLevelForRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  MemoryPressureLevel
	}{
		{0.0, PressureNone},
		{0.49, PressureNone},
		{0.50, PressureLow},
		{0.64, PressureLow},
		{0.65, PressureMedium},
		{0.79, PressureMedium},
		{0.80, PressureHigh},
		{0.89, PressureHigh},
		{0.90, PressureCritical},
		{1.50, PressureCritical},
	}

	for _, tt := range tests {
		if got := PressureLevelForRatio(tt.ratio); got != tt.want {
			t.Errorf("PressureLevelForRatio(%v) = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}

func TestPressureLevelOrdering(t *testing.T) {
	if !(PressureNone < PressureLow && PressureLow < PressureMedium &&
		PressureMedium < PressureHigh && PressureHigh < PressureCritical) {
		t.Error("pressure levels must be strictly ordered")
	}
}

func TestPressureLevelString(t *testing.T) {
	tests := []struct {
		level MemoryPressureLevel
		want  string
	}{
		{PressureNone, "none"},
		{PressureLow, "low"},
		{PressureMedium, "medium"},
		{PressureHigh, "high"},
		{PressureCritical, "critical"},
		{MemoryPressureLevel(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSeverityForRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  SLASeverity
	}{
		{1.0, SeverityLow},
		{1.49, SeverityLow},
		{1.5, SeverityMedium},
		{1.99, SeverityMedium},
		{2.0, SeverityHigh},
		{2.99, SeverityHigh},
		{3.0, SeverityCritical},
		{10.0, SeverityCritical},
	}

	for _, tt := range tests {
		if got := SeverityForRatio(tt.ratio); got != tt.want {
			t.Errorf("SeverityForRatio(%v) = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}

func TestNewSLAViolation(t *testing.T) {
	v := NewSLAViolation(ViolationResponseTime, LayerMemory, 300, 100)

	if v.Type != ViolationResponseTime {
		t.Errorf("Type = %v", v.Type)
	}
	if v.Layer != LayerMemory {
		t.Errorf("Layer = %v", v.Layer)
	}
	if v.ActualValue != 300 || v.TargetValue != 100 {
		t.Errorf("values = %v/%v", v.ActualValue, v.TargetValue)
	}
	if v.Severity != SeverityCritical {
		t.Errorf("300ms against a 100ms target should be critical, got %v", v.Severity)
	}
	if v.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestNewSLAViolationZeroTarget(t *testing.T) {
	// A zero target must not divide; the raw actual grades the severity.
	v := NewSLAViolation(ViolationMemoryUsage, LayerMemory, 5, 0)
	if v.Severity != SeverityCritical {
		t.Errorf("expected critical, got %v", v.Severity)
	}
}
