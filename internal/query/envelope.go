package query

// Record is one result row as returned by the document store or search index.
type Record = map[string]interface{}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const errorResponse = "I encountered an error processing your query. Please try rephrasing or contact support."

// ResultEnvelope is the only value ProcessQuery returns. Results is never nil
// and Response is never empty.
type ResultEnvelope struct {
	ID              string    `json:"id,omitempty"`
	Query           string    `json:"query"`
	Intent          Intent    `json:"intent"`
	Entities        EntitySet `json:"entities"`
	Results         []Record  `json:"results"`
	Count           int       `json:"count"`
	Response        string    `json:"response"`
	ExecutionTimeMS float64   `json:"execution_time_ms"`
	Status          Status    `json:"status"`
	AIUsed          bool      `json:"ai_used"`
	Cached          bool      `json:"cached,omitempty"`
}
