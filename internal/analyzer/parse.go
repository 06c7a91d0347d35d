package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"

	"github.com/BerylCAtieno/audit-auto-api/internal/models"
)

var ErrNoJSON = errors.New("no JSON object in model response")

// StripCodeFences removes a leading ```json (or bare ```) marker and a
// trailing ``` marker. Text without fences is returned trimmed.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// language tag, if any, runs to the end of the first line
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the text between the first '{' and the last '}',
// dropping any prose the model wrapped around the JSON.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

type rawAuditResult struct {
	Score           any      `json:"score"`
	Status          string   `json:"status"`
	Summary         string   `json:"summary"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
}

// ParseAuditResult decodes a model response into an AuditResult. Fenced and
// prose-wrapped responses are accepted; every candidate is tried strictly
// before any repair is attempted.
func ParseAuditResult(response string) (*models.AuditResult, error) {
	cleaned := StripCodeFences(response)
	if cleaned == "" {
		return nil, ErrNoJSON
	}

	candidates := []string{cleaned}
	if obj, ok := extractObject(cleaned); ok && obj != cleaned {
		candidates = append(candidates, obj)
	}

	var lastErr error
	for _, decode := range []func(string) (*rawAuditResult, error){decodeStrict, decodeRepaired, decodeHJSON} {
		for _, c := range candidates {
			raw, err := decode(c)
			if err == nil {
				var result *models.AuditResult
				if result, err = raw.toResult(); err == nil {
					return result, nil
				}
			}
			if lastErr == nil {
				lastErr = err
			}
		}
	}
	return nil, fmt.Errorf("failed to parse model response as JSON: %w", lastErr)
}

func decodeStrict(s string) (*rawAuditResult, error) {
	var raw rawAuditResult
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// decodeRepaired fixes quoting, trailing commas and unclosed brackets.
func decodeRepaired(s string) (*rawAuditResult, error) {
	repaired, err := jsonrepair.RepairJSON(s)
	if err != nil {
		return nil, err
	}
	return decodeStrict(repaired)
}

// decodeHJSON accepts unquoted keys and comments.
func decodeHJSON(s string) (*rawAuditResult, error) {
	var generic map[string]any
	if err := hjson.Unmarshal([]byte(s), &generic); err != nil {
		return nil, err
	}
	b, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	return decodeStrict(string(b))
}

func (r *rawAuditResult) toResult() (*models.AuditResult, error) {
	score, err := parseScore(r.Score)
	if err != nil {
		return nil, err
	}

	result := &models.AuditResult{
		Score:           score,
		Status:          parseStatus(r.Status),
		Summary:         r.Summary,
		Risks:           r.Risks,
		Recommendations: r.Recommendations,
	}
	if result.Risks == nil {
		result.Risks = []string{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	return result, nil
}

// parseScore accepts numbers and numeric strings, clamped to [0, 100].
func parseScore(v any) (int, error) {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid score %q", s)
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("missing score")
	default:
		return 0, fmt.Errorf("invalid score %v", v)
	}
	return int(math.Round(math.Max(0, math.Min(100, f)))), nil
}

// parseStatus maps the model's status onto the enumeration. Anything that
// is not clearly PASSED or ERROR is treated as FAILED.
func parseStatus(s string) models.AuditStatus {
	switch models.AuditStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case models.StatusPassed:
		return models.StatusPassed
	case models.StatusError:
		return models.StatusError
	default:
		return models.StatusFailed
	}
}
