package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// FuseRRF merges ranked lists by reciprocal rank fusion: each document scores
// the sum of 1/(k+rank) over the lists it appears in. Documents are keyed by
// "employee_id", falling back to "id", since the text index and Milvus use
// different document ids for the same employee. Unkeyed documents are dropped.
// The first occurrence of a document supplies its fields.
func FuseRRF(lists [][]map[string]interface{}, k int) []map[string]interface{} {
	if k <= 0 {
		k = rrfK
	}

	type agg struct {
		doc   map[string]interface{}
		score float64
		first int
	}
	scores := make(map[string]*agg)
	order := 0

	for _, list := range lists {
		for idx, doc := range list {
			id := docKey(doc)
			if id == "" {
				continue
			}
			a, ok := scores[id]
			if !ok {
				a = &agg{doc: doc, first: order}
				scores[id] = a
				order++
			}
			a.score += 1.0 / float64(k+idx+1)
		}
	}

	fused := make([]*agg, 0, len(scores))
	for _, a := range scores {
		fused = append(fused, a)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].first < fused[j].first
	})

	out := make([]map[string]interface{}, 0, len(fused))
	for _, a := range fused {
		doc := make(map[string]interface{}, len(a.doc)+1)
		for key, v := range a.doc {
			doc[key] = v
		}
		doc[RerankScoreKey] = a.score
		out = append(out, doc)
	}
	return out
}

func docKey(doc map[string]interface{}) string {
	for _, key := range []string{"employee_id", "id"} {
		if v, ok := doc[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

var pluralForms = [][2]string{
	{"developers", "developer"},
	{"directors", "director"},
	{"managers", "manager"},
	{"analysts", "analyst"},
	{"engineers", "engineer"},
	{"consultants", "consultant"},
	{"specialists", "specialist"},
	{"leads", "lead"},
}

// NormalizePlurals lower-cases query and folds plural role nouns to their
// singular form so lexical search matches singular role values.
func NormalizePlurals(query string) string {
	q := strings.ToLower(query)
	for _, p := range pluralForms {
		q = strings.ReplaceAll(q, p[0], p[1])
	}
	return q
}
