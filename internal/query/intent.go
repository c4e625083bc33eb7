package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is the closed set of answer kinds a query can ask for.
type Intent int

const (
	IntentEmployeeSearch Intent = iota
	IntentCount
	IntentSkillSearch
	IntentDepartmentInfo
	IntentAnalytics
	IntentComparison
	IntentRanking
	IntentGeneralInfo
)

var intentNames = map[Intent]string{
	IntentEmployeeSearch: "employee_search",
	IntentCount:          "count_query",
	IntentSkillSearch:    "skill_search",
	IntentDepartmentInfo: "department_info",
	IntentAnalytics:      "analytics",
	IntentComparison:     "comparison",
	IntentRanking:        "ranking",
	IntentGeneralInfo:    "general_info",
}

// AllIntents lists every intent in declaration order.
func AllIntents() []Intent {
	return []Intent{
		IntentEmployeeSearch, IntentCount, IntentSkillSearch, IntentDepartmentInfo,
		IntentAnalytics, IntentComparison, IntentRanking, IntentGeneralInfo,
	}
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// ParseIntent accepts the wire name of an intent, case-insensitively.
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for intent, name := range intentNames {
		if name == s {
			return intent, true
		}
	}
	return IntentEmployeeSearch, false
}

func (i Intent) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Intent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseIntent(s)
	if !ok {
		return fmt.Errorf("unknown intent %q", s)
	}
	*i = parsed
	return nil
}

type intentRule struct {
	intent   Intent
	keywords []string
}

// intentRules is evaluated top to bottom; the first rule with a keyword
// contained in the lower-cased query wins.
var intentRules = []intentRule{
	{IntentCount, []string{"how many", "count", "number of", "total"}},
	{IntentComparison, []string{"compare", "vs", "versus", "difference"}},
	{IntentRanking, []string{"top", "bottom", "highest", "lowest", "best", "worst"}},
	{IntentAnalytics, []string{"average", "mean", "statistics"}},
}

const defaultIntent = IntentEmployeeSearch

func (r intentRule) matches(lowered string) bool {
	return containsAny(lowered, r.keywords)
}

// ClassifyIntent maps text to an intent using the ordered rule table.
func ClassifyIntent(text string) Intent {
	lowered := strings.ToLower(text)
	for _, rule := range intentRules {
		if rule.matches(lowered) {
			return rule.intent
		}
	}
	return defaultIntent
}

var lowestKeywords = []string{"lowest", "bottom", "worst", "minimum"}

type sortFieldRule struct {
	field    SortField
	keywords []string
}

var sortFieldRules = []sortFieldRule{
	{SortByPerformance, []string{"rating", "performance"}},
	{SortBySalary, []string{"salary", "pay"}},
	{SortByLeaveBalance, []string{"leave", "vacation"}},
}

// resolveRanking fills the direction and sort hints of a ranking query.
func resolveRanking(lowered string, entities *EntitySet) {
	if containsAny(lowered, lowestKeywords) {
		entities.QueryType = QueryTypeLowest
		entities.SortOrder = SortAsc
	} else {
		entities.QueryType = QueryTypeHighest
		entities.SortOrder = SortDesc
	}

	for _, rule := range sortFieldRules {
		if containsAny(lowered, rule.keywords) {
			entities.SortField = rule.field
			return
		}
	}
}

// Analyze classifies text and extracts its entities. It is pure: the same
// text always yields the same pair.
func Analyze(text string) (Intent, EntitySet) {
	intent := ClassifyIntent(text)
	entities := ExtractEntities(text)
	if intent == IntentRanking {
		resolveRanking(strings.ToLower(text), &entities)
	}
	return intent, entities
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
