package query

import "strings"

type QueryType string

const (
	QueryTypeHighest QueryType = "highest"
	QueryTypeLowest  QueryType = "lowest"
)

type SortField string

const (
	SortByPerformance  SortField = "performance_rating"
	SortBySalary       SortField = "salary"
	SortByLeaveBalance SortField = "leave_balance"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// EntitySet holds the structured facts extracted from a query. Empty strings
// mean "not present"; Skills is never nil.
type EntitySet struct {
	Department string    `json:"department"`
	Role       string    `json:"role"`
	Location   string    `json:"location"`
	Skills     []string  `json:"skills"`
	QueryType  QueryType `json:"query_type"`
	SortField  SortField `json:"sort_field"`
	SortOrder  SortOrder `json:"sort_order"`
}

// Vocabularies are ordered: for single-valued fields the first entry found
// in the text wins, so order is the tie-break.
var (
	Departments = []string{"Sales", "IT", "Operations", "HR", "Finance", "Legal", "Engineering", "Marketing", "Support"}
	Roles       = []string{"Developer", "Manager", "Analyst", "Director", "Lead", "Engineer", "Consultant", "Specialist"}
	Skills      = []string{"PMP", "GCP", "AWS", "Azure", "Python", "Java", "JavaScript", "SQL", "Docker", "Kubernetes"}
	Locations   = []string{"Remote", "Onshore", "Offshore", "New York", "California", "India", "Chennai", "Hyderabad"}
)

// ExtractEntities resolves department, role and location to at most one
// vocabulary entry each and skills to every entry found. It never fails.
func ExtractEntities(text string) EntitySet {
	lowered := strings.ToLower(text)

	return EntitySet{
		Department: firstMatch(lowered, Departments, false),
		Role:       firstMatch(lowered, Roles, true),
		Location:   firstMatch(lowered, Locations, false),
		Skills:     allMatches(lowered, Skills),
	}
}

func firstMatch(lowered string, vocabulary []string, plural bool) string {
	for _, entry := range vocabulary {
		term := strings.ToLower(entry)
		if strings.Contains(lowered, term) {
			return entry
		}
		if plural && strings.Contains(lowered, term+"s") {
			return entry
		}
	}
	return ""
}

func allMatches(lowered string, vocabulary []string) []string {
	found := make([]string, 0)
	for _, entry := range vocabulary {
		if strings.Contains(lowered, strings.ToLower(entry)) {
			found = append(found, entry)
		}
	}
	return found
}

// HasFilter reports whether any structured filter field is set.
func (e EntitySet) HasFilter() bool {
	return e.Department != "" || e.Role != "" || e.Location != ""
}
