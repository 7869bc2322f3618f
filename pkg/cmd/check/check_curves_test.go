package check

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sample(pct int, fuel float64) curveSampleRow {
	return curveSampleRow{
		ID:   "c1",
		Pct:  pct,
		Fuel: decimal.NullDecimal{Decimal: decimal.NewFromFloat(fuel), Valid: true},
	}
}

func nullSample(pct int) curveSampleRow {
	return curveSampleRow{ID: "c1", Pct: pct}
}

func TestValidateCurve(t *testing.T) {
	tests := []struct {
		name    string
		samples []curveSampleRow
		issues  []string
	}{
		{
			name:    "clean curve",
			samples: []curveSampleRow{sample(0, 52.0), sample(50, 50.75), sample(100, 49.5)},
			issues:  []string{},
		},
		{
			name:    "missing readings are fine",
			samples: []curveSampleRow{sample(0, 52.0), nullSample(30), sample(60, 50.0)},
			issues:  []string{},
		},
		{
			name:    "flat sections are fine",
			samples: []curveSampleRow{sample(0, 52.0), sample(1, 52.0), sample(2, 51.9)},
			issues:  []string{},
		},
		{
			name:    "pct out of range",
			samples: []curveSampleRow{sample(0, 52.0), sample(101, 49.0)},
			issues:  []string{"pct 101 out of range"},
		},
		{
			// samples without a pct attribute arrive as -1
			name:    "malformed sample",
			samples: []curveSampleRow{sample(0, 52.0), sample(-1, 50.0)},
			issues:  []string{"pct -1 out of range"},
		},
		{
			name:    "duplicate pct",
			samples: []curveSampleRow{sample(0, 52.0), sample(10, 51.0), sample(10, 50.9)},
			issues:  []string{"duplicate pct 10"},
		},
		{
			name:    "missing bucket zero",
			samples: []curveSampleRow{sample(10, 51.0), sample(20, 50.5)},
			issues:  []string{"no sample for pct 0"},
		},
		{
			name:    "null fuel at bucket zero",
			samples: []curveSampleRow{nullSample(0), sample(10, 51.0)},
			issues:  []string{"no fuel reading for pct 0"},
		},
		{
			name:    "fuel increase",
			samples: []curveSampleRow{sample(0, 52.0), sample(10, 51.0), sample(20, 51.4)},
			issues:  []string{"fuel increases from pct 10 to 20 (51 -> 51.4)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.issues, validateCurve(tt.samples))
		})
	}
}
