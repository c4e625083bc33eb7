package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"

	"github.com/hr-qa/backend/internal/pipeline"
)

const maxRankingRows = 5

// Synthesize renders a deterministic answer for the handler output. It never
// calls a language model, so degraded mode answers exactly like normal mode.
func Synthesize(intent Intent, entities EntitySet, results []Record, count int) string {
	switch intent {
	case IntentCount:
		return countResponse(entities, count)
	case IntentRanking:
		return rankingResponse(entities, results)
	case IntentAnalytics:
		return analyticsResponse(results)
	default:
		return searchResponse(count)
	}
}

func countResponse(entities EntitySet, count int) string {
	return fmt.Sprintf("There are %d employees %s.", count, filterDescription(entities))
}

func filterDescription(entities EntitySet) string {
	if !entities.HasFilter() {
		return "in the company"
	}
	var parts []string
	if entities.Department != "" {
		parts = append(parts, fmt.Sprintf("in the %s department", entities.Department))
	}
	if entities.Role != "" {
		parts = append(parts, fmt.Sprintf("with %s role", entities.Role))
	}
	if entities.Location != "" {
		parts = append(parts, fmt.Sprintf("in %s", entities.Location))
	}
	return strings.Join(parts, " and ")
}

func rankingResponse(entities EntitySet, results []Record) string {
	if len(results) == 0 {
		return "No employees found matching your criteria."
	}

	field, err := pipeline.LookupRankField(string(entities.SortField))
	if err != nil {
		field, _ = pipeline.LookupRankField("")
	}
	direction := QueryTypeHighest
	if entities.QueryType == QueryTypeLowest {
		direction = QueryTypeLowest
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Employees with the %s %s:", direction, field.Label)
	for i, r := range results {
		if i >= maxRankingRows {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s (%s) - %s", i+1, str(r, "full_name"), str(r, "department"), rankingColumn(field.Name, r))
	}
	return b.String()
}

func rankingColumn(field string, r Record) string {
	switch field {
	case "leave_balance":
		return fmt.Sprintf("Leave Balance: %s days (taken %s)", number(r, "leave_balance"), number(r, "leave_taken"))
	case "salary":
		return "Salary: " + currency(num(r, "salary"))
	default:
		return "Rating: " + number(r, "performance_rating")
	}
}

func analyticsResponse(results []Record) string {
	if len(results) == 0 {
		return "No employees found matching your criteria."
	}
	summary := results[0]

	lines := []string{"Analytics Summary:"}
	if _, ok := summary["count"]; ok {
		lines = append(lines, fmt.Sprintf("• Total Employees: %d", int(num(summary, "count"))))
	}
	if v, ok := present(summary, "avg_performance"); ok {
		lines = append(lines, fmt.Sprintf("• Average Performance: %.1f", v))
	}
	if v, ok := present(summary, "avg_salary"); ok {
		lines = append(lines, "• Average Salary: "+currency(v))
	}
	return strings.Join(lines, "\n")
}

// SynthesizeComparison renders grouped comparison rows as produced by the
// comparison plan.
func SynthesizeComparison(groups []Record) string {
	if len(groups) == 0 {
		return "No employees found matching your criteria."
	}

	lines := []string{"Comparison Results:"}
	for _, g := range groups {
		name := str(g, "_id")
		if name == "" {
			name = "Unassigned"
		}
		lines = append(lines, fmt.Sprintf("• %s: %d employees", name, int(num(g, "count"))))
		if v, ok := present(g, "avg_salary"); ok {
			lines = append(lines, "  - Average Salary: "+currency(v))
		}
		if v, ok := present(g, "avg_rating"); ok {
			lines = append(lines, fmt.Sprintf("  - Average Rating: %.1f", v))
		}
	}
	return strings.Join(lines, "\n")
}

func searchResponse(count int) string {
	if count == 0 {
		return "No employees found matching your criteria."
	}
	return fmt.Sprintf("Found %d employees matching your criteria.", count)
}

func str(r Record, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// num reads a numeric column. Missing or malformed values read as 0.
func num(r Record, key string) float64 {
	v, _ := present(r, key)
	return v
}

func present(r Record, key string) (float64, bool) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return 0, false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) {
		return 0, true
	}
	return v, true
}

// number prints whole values without decimals and everything else with one.
func number(r Record, key string) string {
	v := num(r, key)
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func currency(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}
