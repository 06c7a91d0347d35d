// Package transactions implements the CSV fast path: loading ledger
// exports, projecting them onto the canonical {vendor, description, amount,
// date} schema and flagging rows that look suspicious.
package transactions

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Column string

const (
	ColumnVendor      Column = "vendor"
	ColumnDescription Column = "description"
	ColumnAmount      Column = "amount"
	ColumnDate        Column = "date"
)

// CanonicalColumns is the projection order of a normalized table.
var CanonicalColumns = []Column{ColumnVendor, ColumnDescription, ColumnAmount, ColumnDate}

// columnRules is evaluated in order and the first rule with a matching
// substring wins.
var columnRules = []struct {
	column   Column
	keywords []string
}{
	{ColumnVendor, []string{"vendor", "merchant"}},
	{ColumnDescription, []string{"desc", "detail"}},
	{ColumnAmount, []string{"amount", "cost", "price"}},
	{ColumnDate, []string{"date", "time"}},
}

// RawTable is a parsed spreadsheet with arbitrary headers. A nil cell is a
// missing value.
type RawTable struct {
	Header []string
	Rows   [][]*string
}

// Row is one record projected onto the canonical schema. Fields for columns
// the table does not carry stay nil / invalid.
type Row struct {
	Index       int
	Vendor      *string
	Description *string
	Amount      decimal.NullDecimal
	Date        *string
}

type Table struct {
	Columns []Column
	Rows    []Row
}

func (t *Table) Has(c Column) bool {
	if t == nil {
		return false
	}
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has nothing the heuristics could inspect.
func (t *Table) Empty() bool {
	return t.Len() == 0 || len(t.Columns) == 0
}

// ClassifyColumn maps a header onto a canonical column. ok is false for
// headers that match no rule.
func ClassifyColumn(header string) (Column, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, rule := range columnRules {
		for _, kw := range rule.keywords {
			if strings.Contains(h, kw) {
				return rule.column, true
			}
		}
	}
	return "", false
}

// ParseAmount strips "$" and "," and parses the rest as a decimal. Anything
// that does not parse becomes a missing value.
func ParseAmount(raw string) decimal.NullDecimal {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Normalize projects raw onto the canonical schema. Unmatched headers are
// dropped; when several headers map to the same canonical column the
// leftmost one is used.
func Normalize(raw RawTable) *Table {
	source := make(map[Column]int, len(CanonicalColumns))
	for i, h := range raw.Header {
		col, ok := ClassifyColumn(h)
		if !ok {
			continue
		}
		if _, taken := source[col]; !taken {
			source[col] = i
		}
	}

	t := &Table{}
	for _, col := range CanonicalColumns {
		if _, ok := source[col]; ok {
			t.Columns = append(t.Columns, col)
		}
	}

	t.Rows = make([]Row, 0, len(raw.Rows))
	for i, cells := range raw.Rows {
		row := Row{Index: i}
		for col, idx := range source {
			if idx >= len(cells) || cells[idx] == nil {
				continue
			}
			v := *cells[idx]
			switch col {
			case ColumnVendor:
				row.Vendor = &v
			case ColumnDescription:
				row.Description = &v
			case ColumnAmount:
				row.Amount = ParseAmount(v)
			case ColumnDate:
				row.Date = &v
			}
		}
		t.Rows = append(t.Rows, row)
	}

	return t
}

// Raw renders the table back into a RawTable with canonical headers.
func (t *Table) Raw() RawTable {
	raw := RawTable{}
	for _, col := range t.Columns {
		raw.Header = append(raw.Header, string(col))
	}
	for _, row := range t.Rows {
		cells := make([]*string, 0, len(t.Columns))
		for _, col := range t.Columns {
			cells = append(cells, row.text(col))
		}
		raw.Rows = append(raw.Rows, cells)
	}
	return raw
}

// Map returns the row as a column->value map restricted to the table's
// columns. Missing values are nil and amounts are float64.
func (t *Table) Map(row Row) map[string]any {
	m := make(map[string]any, len(t.Columns))
	for _, col := range t.Columns {
		switch col {
		case ColumnAmount:
			if row.Amount.Valid {
				m[string(col)] = row.Amount.Decimal.InexactFloat64()
			} else {
				m[string(col)] = nil
			}
		default:
			if p := row.text(col); p != nil {
				m[string(col)] = *p
			} else {
				m[string(col)] = nil
			}
		}
	}
	return m
}

func (r Row) text(col Column) *string {
	switch col {
	case ColumnVendor:
		return r.Vendor
	case ColumnDescription:
		return r.Description
	case ColumnDate:
		return r.Date
	case ColumnAmount:
		if !r.Amount.Valid {
			return nil
		}
		s := r.Amount.Decimal.String()
		return &s
	}
	return nil
}
