package transactions

import (
	"io"

	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

// DefaultPayloadLimit caps how many suspicious rows are handed to the LLM.
const DefaultPayloadLimit = 50

// ScanResult is the outcome of the fast path.
type ScanResult struct {
	TotalRows      int              `json:"total_rows"`
	SuspiciousRows int              `json:"suspicious_rows"`
	Payload        []map[string]any `json:"llm_payload"`
	Fallback       bool             `json:"fallback,omitempty"`
	SkippedRows    int              `json:"skipped_rows,omitempty"`
}

// Clean reports whether the upload can be passed without an LLM audit.
func (r ScanResult) Clean() bool {
	return r.SuspiciousRows == 0
}

type Scanner struct {
	thresholds   Thresholds
	payloadLimit int
	logger       *utils.Logger
}

type ScannerOption func(*Scanner)

func WithThresholds(th Thresholds) ScannerOption {
	return func(s *Scanner) {
		s.thresholds = th
	}
}

func WithPayloadLimit(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.payloadLimit = n
		}
	}
}

func NewScanner(logger *utils.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		thresholds:   DefaultThresholds,
		payloadLimit: DefaultPayloadLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan loads, normalizes and screens a CSV. Parse failures produce an empty
// result instead of an error.
func (s *Scanner) Scan(r io.Reader) ScanResult {
	return s.screen(LoadCSV(r))
}

// ScanBytes is Scan over an in-memory upload.
func (s *Scanner) ScanBytes(data []byte) ScanResult {
	return s.screen(LoadCSVBytes(data))
}

func (s *Scanner) screen(raw RawTable, stats LoadStats, err error) ScanResult {
	if err != nil {
		s.logger.Warn("Failed to load CSV", "error", err)
		return ScanResult{Payload: []map[string]any{}}
	}
	if stats.SkippedRows > 0 || stats.NulledCells > 0 {
		s.logger.Debug("CSV rows discarded during load",
			"skipped_rows", stats.SkippedRows,
			"nulled_cells", stats.NulledCells)
	}

	table := Normalize(raw)
	if table.Empty() {
		return ScanResult{Payload: []map[string]any{}, SkippedRows: stats.SkippedRows}
	}

	detection := s.thresholds.Detect(table)
	if detection.Fallback {
		s.logger.Warn("No amount or vendor column; reporting leading rows as suspicious",
			"columns", table.Columns,
			"rows", detection.Count())
	}

	limit := min(s.payloadLimit, detection.Count())
	payload := make([]map[string]any, 0, limit)
	for _, f := range detection.Findings[:limit] {
		payload = append(payload, table.Map(f.Row))
	}

	return ScanResult{
		TotalRows:      table.Len(),
		SuspiciousRows: detection.Count(),
		Payload:        payload,
		Fallback:       detection.Fallback,
		SkippedRows:    stats.SkippedRows,
	}
}
