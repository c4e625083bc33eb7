package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"count keyword", "How many developers do we have?", IntentCount},
		{"number of", "number of managers in sales", IntentCount},
		{"comparison", "compare sales and finance", IntentComparison},
		{"versus", "engineering versus marketing staff", IntentComparison},
		{"ranking highest", "who has the highest salary", IntentRanking},
		{"ranking worst", "worst performers", IntentRanking},
		{"analytics", "average salary of analysts", IntentAnalytics},
		{"statistics", "show statistics", IntentAnalytics},
		{"default", "find python developers", IntentEmployeeSearch},
		{"empty", "", IntentEmployeeSearch},
		{"count beats ranking", "how many are the top performers", IntentCount},
		{"count beats analytics", "total and average salary", IntentCount},
		{"comparison beats ranking", "compare the best managers", IntentComparison},
		{"ranking beats analytics", "highest average rating", IntentRanking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.text))
		})
	}
}

func TestAnalyzeRankingHints(t *testing.T) {
	tests := []struct {
		text      string
		queryType QueryType
		order     SortOrder
		field     SortField
	}{
		{"who has the lowest leave balance", QueryTypeLowest, SortAsc, SortByLeaveBalance},
		{"top performers by rating", QueryTypeHighest, SortDesc, SortByPerformance},
		{"bottom 5 by pay", QueryTypeLowest, SortAsc, SortBySalary},
		{"best salary", QueryTypeHighest, SortDesc, SortBySalary},
		{"worst vacation usage", QueryTypeLowest, SortAsc, SortByLeaveBalance},
		{"top people", QueryTypeHighest, SortDesc, ""},
		// rating outranks salary when both occur
		{"highest salary and rating", QueryTypeHighest, SortDesc, SortByPerformance},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent, entities := Analyze(tt.text)
			require.Equal(t, IntentRanking, intent)
			assert.Equal(t, tt.queryType, entities.QueryType)
			assert.Equal(t, tt.order, entities.SortOrder)
			assert.Equal(t, tt.field, entities.SortField)
		})
	}
}

func TestAnalyzeLeavesSortHintsUnsetOutsideRanking(t *testing.T) {
	intent, entities := Analyze("how many people have the lowest salary")
	assert.Equal(t, IntentCount, intent)
	assert.Empty(t, entities.QueryType)
	assert.Empty(t, entities.SortField)
	assert.Empty(t, entities.SortOrder)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	inputs := []string{
		"top 10 developers in Sales by rating",
		"how many managers in IT",
		"",
		"random words here",
	}
	for _, text := range inputs {
		i1, e1 := Analyze(text)
		i2, e2 := Analyze(text)
		assert.Equal(t, i1, i2)
		assert.Equal(t, e1, e2)
	}
}

func TestIntentWireNames(t *testing.T) {
	for _, intent := range AllIntents() {
		data, err := json.Marshal(intent)
		require.NoError(t, err)

		var decoded Intent
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, intent, decoded)
	}

	assert.Equal(t, "count_query", IntentCount.String())
	assert.Equal(t, "employee_search", IntentEmployeeSearch.String())

	parsed, ok := ParseIntent("  Ranking ")
	assert.True(t, ok)
	assert.Equal(t, IntentRanking, parsed)

	_, ok = ParseIntent("weather")
	assert.False(t, ok)

	var bad Intent
	assert.Error(t, json.Unmarshal([]byte(`"weather"`), &bad))
}
