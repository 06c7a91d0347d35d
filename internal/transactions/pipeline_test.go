package transactions

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

func newTestScanner(opts ...ScannerOption) *Scanner {
	return NewScanner(utils.NewDiscardLogger(), opts...)
}

func TestLoadCSV_NullTokensAndMalformedRows(t *testing.T) {
	input := "Vendor,Amount,Note\n" +
		"Acme,100,NA\n" +
		"Globex,null,ok\n" +
		"too,many,fields,here\n" +
		"Initech,None,\n" +
		"short\n"

	raw, stats, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"Vendor", "Amount", "Note"}, raw.Header)
	require.Len(t, raw.Rows, 3)
	assert.Equal(t, 2, stats.SkippedRows)

	assert.Nil(t, raw.Rows[0][2])
	assert.Nil(t, raw.Rows[1][1])
	assert.Nil(t, raw.Rows[2][1])
	assert.Nil(t, raw.Rows[2][2])
	assert.Equal(t, "Initech", *raw.Rows[2][0])
}

func TestLoadCSV_StripsBOM(t *testing.T) {
	raw, _, err := LoadCSV(strings.NewReader("\ufeffVendor,Amount\nAcme,1\n"))
	require.NoError(t, err)
	assert.Equal(t, "Vendor", raw.Header[0])
}

func TestLoadCSV_InferredNumericColumn(t *testing.T) {
	var b strings.Builder
	b.WriteString("vendor,amount\n")
	for i := 0; i < InferSchemaRows; i++ {
		fmt.Fprintf(&b, "v%d,%d\n", i, i)
	}
	b.WriteString("late,$2,000\n")
	b.WriteString("late2,3000\n")

	raw, stats, err := LoadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)

	// "late,$2,000" has three fields and is skipped
	assert.Equal(t, 1, stats.SkippedRows)
	require.Len(t, raw.Rows, InferSchemaRows+1)
	assert.Equal(t, "3000", *raw.Rows[InferSchemaRows][1])

	raw2, stats2, err := LoadCSV(strings.NewReader(strings.Replace(b.String(), "late,$2,000", `late,"$2,000"`, 1)))
	require.NoError(t, err)
	assert.Equal(t, 1, stats2.NulledCells)
	assert.Nil(t, raw2.Rows[InferSchemaRows][1])
}

func TestLoadCSV_Empty(t *testing.T) {
	_, _, err := LoadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestScan_RepeatedVendorRows(t *testing.T) {
	input := "vendor,amount\n" + strings.Repeat("Acme,\"$5000\"\n", 5)

	result := newTestScanner().Scan(strings.NewReader(input))

	assert.Equal(t, 5, result.TotalRows)
	assert.Equal(t, 5, result.SuspiciousRows)
	assert.False(t, result.Clean())
	require.Len(t, result.Payload, 5)
	assert.Equal(t, map[string]any{"vendor": "Acme", "amount": 5000.0}, result.Payload[0])
}

func TestScan_CleanFile(t *testing.T) {
	input := "Merchant,Price,Date\nAcme,12.50,2024-01-01\nGlobex,99,2024-01-02\n"

	result := newTestScanner().Scan(strings.NewReader(input))

	assert.True(t, result.Clean())
	assert.Equal(t, 2, result.TotalRows)
	assert.Empty(t, result.Payload)
}

func TestScan_PayloadCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("vendor,amount\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "v%d,%d\n", i, (i+1)*1000)
	}

	result := newTestScanner().Scan(strings.NewReader(b.String()))
	assert.Equal(t, 120, result.TotalRows)
	assert.Equal(t, 120, result.SuspiciousRows)
	assert.Len(t, result.Payload, DefaultPayloadLimit)

	small := newTestScanner(WithPayloadLimit(3)).Scan(strings.NewReader(b.String()))
	assert.Len(t, small.Payload, 3)
}

func TestScan_ParseFailureIsEmpty(t *testing.T) {
	result := newTestScanner().Scan(strings.NewReader(""))
	assert.Equal(t, 0, result.TotalRows)
	assert.Equal(t, 0, result.SuspiciousRows)
	assert.NotNil(t, result.Payload)
	assert.Empty(t, result.Payload)
}

func TestScan_NoCanonicalColumns(t *testing.T) {
	result := newTestScanner().Scan(strings.NewReader("foo,bar\n1,2\n3,4\n"))
	assert.Equal(t, 0, result.TotalRows)
	assert.True(t, result.Clean())
}

func TestScan_Fallback(t *testing.T) {
	result := newTestScanner().Scan(strings.NewReader("description\nfirst\nsecond\n"))
	assert.True(t, result.Fallback)
	assert.Equal(t, 2, result.SuspiciousRows)
	assert.Equal(t, []map[string]any{{"description": "first"}, {"description": "second"}}, result.Payload)
}

func TestScanBytes(t *testing.T) {
	result := newTestScanner().ScanBytes([]byte("\ufeffvendor,amount\nAcme,9000\n"))
	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, 1, result.SuspiciousRows)
	assert.Equal(t, "Acme", result.Payload[0]["vendor"])

	empty := newTestScanner().ScanBytes(nil)
	assert.Equal(t, 0, empty.TotalRows)
	assert.NotNil(t, empty.Payload)
}

func TestScan_CustomThresholds(t *testing.T) {
	input := "vendor,amount\nAcme,1200\nGlobex,250\nInitech,75\n"

	// defaults: nothing round, nothing above 5000, no repeat vendors
	assert.True(t, newTestScanner().Scan(strings.NewReader(input)).Clean())

	strict := newTestScanner(WithThresholds(Thresholds{
		RoundUnit:       decimal.NewFromInt(250),
		HighAmount:      decimal.NewFromInt(1000),
		VendorFrequency: 5,
		FallbackRows:    10,
	}))
	result := strict.Scan(strings.NewReader(input))
	assert.Equal(t, 3, result.TotalRows)
	// 1200 is above 1000, 250 is a multiple of 250
	assert.Equal(t, 2, result.SuspiciousRows)
	assert.False(t, result.Fallback)
}
