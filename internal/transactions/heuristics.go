package transactions

import (
	"github.com/shopspring/decimal"
)

type Flag string

const (
	FlagRoundAmount    Flag = "round_amount"
	FlagHighAmount     Flag = "high_amount"
	FlagFrequentVendor Flag = "frequent_vendor"
)

// Thresholds parameterises the suspicion rules.
type Thresholds struct {
	// RoundUnit flags nonzero amounts that are an exact multiple of it.
	RoundUnit decimal.Decimal
	// HighAmount flags amounts strictly above it.
	HighAmount decimal.Decimal
	// VendorFrequency flags every row of a vendor seen at least this often.
	VendorFrequency int
	// FallbackRows is how many leading rows are reported when the table has
	// neither an amount nor a vendor column.
	FallbackRows int
}

var DefaultThresholds = Thresholds{
	RoundUnit:       decimal.NewFromInt(1000),
	HighAmount:      decimal.NewFromInt(5000),
	VendorFrequency: 5,
	FallbackRows:    10,
}

// Finding is a suspicious row with every rule it tripped.
type Finding struct {
	Row   Row
	Flags []Flag
}

type Detection struct {
	Findings []Finding
	// Fallback is set when Findings are the leading rows of a table the
	// rules could not inspect, not rule matches.
	Fallback bool
}

func (d Detection) Count() int {
	return len(d.Findings)
}

// RoundAmountRows returns the indexes of rows with a nonzero amount that is
// a multiple of RoundUnit. Empty when the table has no amount column.
func (th Thresholds) RoundAmountRows(t *Table) []int {
	if !t.Has(ColumnAmount) {
		return nil
	}
	var out []int
	for i, row := range t.Rows {
		if !row.Amount.Valid {
			continue
		}
		amt := row.Amount.Decimal
		if amt.IsPositive() && amt.Mod(th.RoundUnit).IsZero() {
			out = append(out, i)
		}
	}
	return out
}

// HighAmountRows returns the indexes of rows whose amount exceeds HighAmount.
func (th Thresholds) HighAmountRows(t *Table) []int {
	if !t.Has(ColumnAmount) {
		return nil
	}
	var out []int
	for i, row := range t.Rows {
		if row.Amount.Valid && row.Amount.Decimal.GreaterThan(th.HighAmount) {
			out = append(out, i)
		}
	}
	return out
}

// FrequentVendorRows returns the indexes of every row whose vendor appears
// at least VendorFrequency times. Rows without a vendor never match.
func (th Thresholds) FrequentVendorRows(t *Table) []int {
	if !t.Has(ColumnVendor) {
		return nil
	}
	counts := make(map[string]int)
	for _, row := range t.Rows {
		if row.Vendor != nil {
			counts[*row.Vendor]++
		}
	}
	var out []int
	for i, row := range t.Rows {
		if row.Vendor != nil && counts[*row.Vendor] >= th.VendorFrequency {
			out = append(out, i)
		}
	}
	return out
}

// Detect unions the three rule sets. A row that trips several rules is
// reported once, in table order, with all of its flags.
func (th Thresholds) Detect(t *Table) Detection {
	if t.Len() == 0 {
		return Detection{}
	}

	if !t.Has(ColumnAmount) && !t.Has(ColumnVendor) {
		n := min(th.FallbackRows, t.Len())
		findings := make([]Finding, 0, n)
		for _, row := range t.Rows[:n] {
			findings = append(findings, Finding{Row: row})
		}
		return Detection{Findings: findings, Fallback: true}
	}

	flags := make([][]Flag, t.Len())
	mark := func(idx []int, f Flag) {
		for _, i := range idx {
			flags[i] = append(flags[i], f)
		}
	}
	mark(th.RoundAmountRows(t), FlagRoundAmount)
	mark(th.FrequentVendorRows(t), FlagFrequentVendor)
	mark(th.HighAmountRows(t), FlagHighAmount)

	var d Detection
	for i, f := range flags {
		if len(f) > 0 {
			d.Findings = append(d.Findings, Finding{Row: t.Rows[i], Flags: f})
		}
	}
	return d
}

// Detect runs DefaultThresholds against t.
func Detect(t *Table) Detection {
	return DefaultThresholds.Detect(t)
}
