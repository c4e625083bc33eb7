// Package pipeline compiles query intents into MongoDB aggregation pipelines
// over the employee collections. Plans are data: every stage is a bson.D so
// they can be inspected in tests and logged before execution.
package pipeline

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	BaseCollection       = "personal_info"
	EmploymentCollection = "employment"
	JoinKey              = "employee_id"
	DefaultRankingLimit  = 10
	DefaultRankField     = "performance_rating"
	CountAlias           = "total"
)

// Numeric is an attribute coerced to a double under Alias.
type Numeric struct {
	Alias string
	Path  string
}

// Column is a projected output column read from a numeric alias.
type Column struct {
	Name string
	From string
}

// RankField is one row of the ranking table. Adding a sortable attribute
// means adding a row here; no builder code changes.
type RankField struct {
	Name       string
	Label      string
	Collection string
	// Numerics[0] is the sort key.
	Numerics []Numeric
	Columns  []Column
}

var rankFields = []RankField{
	{
		Name:       "performance_rating",
		Label:      "performance rating",
		Collection: "performance",
		Numerics:   []Numeric{{Alias: "performance_rating_num", Path: "performance.performance_rating"}},
		Columns:    []Column{{Name: "performance_rating", From: "performance_rating_num"}},
	},
	{
		Name:       "salary",
		Label:      "salary",
		Collection: "compensation",
		Numerics:   []Numeric{{Alias: "salary_num", Path: "compensation.current_salary"}},
		Columns:    []Column{{Name: "salary", From: "salary_num"}},
	},
	{
		Name:       "leave_balance",
		Label:      "leave balance",
		Collection: "attendance",
		Numerics: []Numeric{
			{Alias: "leave_balance_num", Path: "attendance.leave_balance"},
			{Alias: "leave_taken_num", Path: "attendance.leave_days_taken"},
		},
		Columns: []Column{
			{Name: "leave_balance", From: "leave_balance_num"},
			{Name: "leave_taken", From: "leave_taken_num"},
		},
	},
}

// LookupRankField returns the table row for name. An empty name selects
// DefaultRankField.
func LookupRankField(name string) (RankField, error) {
	if name == "" {
		name = DefaultRankField
	}
	for _, f := range rankFields {
		if f.Name == name {
			return f, nil
		}
	}
	return RankField{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

var ErrUnknownField = errors.New("unknown ranking field")

// Filter carries the equality filters shared by every plan.
type Filter struct {
	Department string
	Role       string
	Location   string
}

func (f Filter) empty() bool {
	return f.Department == "" && f.Role == "" && f.Location == ""
}

// Plan is an aggregation to run against Collection.
type Plan struct {
	Collection string
	Stages     mongo.Pipeline
}

type Builder struct {
	rankingLimit int
}

func NewBuilder(rankingLimit int) *Builder {
	if rankingLimit <= 0 {
		rankingLimit = DefaultRankingLimit
	}
	return &Builder{rankingLimit: rankingLimit}
}

func (b *Builder) RankingLimit() int {
	return b.rankingLimit
}

// Count joins employment, applies the filter and emits a single {total: n}.
func (b *Builder) Count(filter Filter) Plan {
	stages := b.filtered(filter)
	stages = append(stages, bson.D{{Key: "$count", Value: CountAlias}})
	return Plan{Collection: BaseCollection, Stages: stages}
}

// Ranking sorts employees by the numeric value of field, capped at the
// builder's limit, projecting the columns of that field's table row.
func (b *Builder) Ranking(filter Filter, field string, ascending bool) (Plan, error) {
	rf, err := LookupRankField(field)
	if err != nil {
		return Plan{}, err
	}

	stages := b.filtered(filter)
	stages = append(stages, join(rf.Collection)...)
	stages = append(stages, addNumerics(rf.Numerics...))

	order := -1
	if ascending {
		order = 1
	}
	sortKey := rf.Numerics[0].Alias
	stages = append(stages,
		bson.D{{Key: "$sort", Value: bson.D{{Key: sortKey, Value: order}, {Key: JoinKey, Value: 1}}}},
		bson.D{{Key: "$limit", Value: b.rankingLimit}},
	)

	projection := bson.D{
		{Key: "_id", Value: 0},
		{Key: JoinKey, Value: 1},
		{Key: "full_name", Value: 1},
		{Key: "department", Value: "$employment.department"},
		{Key: "role", Value: "$employment.role"},
		{Key: "sort_value", Value: "$" + sortKey},
	}
	for _, col := range rf.Columns {
		projection = append(projection, bson.E{Key: col.Name, Value: "$" + col.From})
	}
	stages = append(stages, bson.D{{Key: "$project", Value: projection}})

	return Plan{Collection: BaseCollection, Stages: stages}, nil
}

var (
	performanceNumeric = Numeric{Alias: "performance_rating_num", Path: "performance.performance_rating"}
	salaryNumeric      = Numeric{Alias: "salary_num", Path: "compensation.current_salary"}
)

// Analytics aggregates head count plus performance and salary statistics
// over the filtered employees into one summary record.
func (b *Builder) Analytics(filter Filter) Plan {
	stages := b.filtered(filter)
	stages = append(stages, join("performance")...)
	stages = append(stages, join("compensation")...)
	stages = append(stages,
		addNumerics(performanceNumeric, salaryNumeric),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_performance", Value: bson.D{{Key: "$avg", Value: "$performance_rating_num"}}},
			{Key: "max_performance", Value: bson.D{{Key: "$max", Value: "$performance_rating_num"}}},
			{Key: "min_performance", Value: bson.D{{Key: "$min", Value: "$performance_rating_num"}}},
			{Key: "avg_salary", Value: bson.D{{Key: "$avg", Value: "$salary_num"}}},
			{Key: "max_salary", Value: bson.D{{Key: "$max", Value: "$salary_num"}}},
			{Key: "min_salary", Value: bson.D{{Key: "$min", Value: "$salary_num"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}}}},
	)
	return Plan{Collection: BaseCollection, Stages: stages}
}

// GroupBy names the employment attribute a comparison groups on.
type GroupBy string

const (
	GroupByDepartment GroupBy = "department"
	GroupByRole       GroupBy = "role"
)

// Comparison groups the filtered employees by department or role with head
// count, average salary and average rating per group.
func (b *Builder) Comparison(filter Filter, groupBy GroupBy) (Plan, error) {
	if groupBy != GroupByDepartment && groupBy != GroupByRole {
		return Plan{}, fmt.Errorf("unsupported comparison group %q", groupBy)
	}

	stages := b.filtered(filter)
	stages = append(stages, join("performance")...)
	stages = append(stages, join("compensation")...)
	stages = append(stages,
		addNumerics(performanceNumeric, salaryNumeric),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$employment." + string(groupBy)},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_salary", Value: bson.D{{Key: "$avg", Value: "$salary_num"}}},
			{Key: "avg_rating", Value: bson.D{{Key: "$avg", Value: "$performance_rating_num"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)
	return Plan{Collection: BaseCollection, Stages: stages}, nil
}

// filtered returns the employment join followed by the filter's $match.
func (b *Builder) filtered(filter Filter) mongo.Pipeline {
	stages := join(EmploymentCollection)
	if match := matchStage(filter); match != nil {
		stages = append(stages, match)
	}
	return stages
}

func join(collection string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: collection},
			{Key: "localField", Value: JoinKey},
			{Key: "foreignField", Value: JoinKey},
			{Key: "as", Value: collection},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + collection},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

func matchStage(filter Filter) bson.D {
	if filter.empty() {
		return nil
	}
	conds := bson.D{}
	if filter.Department != "" {
		conds = append(conds, bson.E{Key: "employment.department", Value: filter.Department})
	}
	if filter.Role != "" {
		conds = append(conds, bson.E{Key: "employment.role", Value: filter.Role})
	}
	if filter.Location != "" {
		conds = append(conds, bson.E{Key: "location", Value: filter.Location})
	}
	return bson.D{{Key: "$match", Value: conds}}
}

// addNumerics coerces each path to a double. Null, missing and non-numeric
// values become 0 instead of failing the aggregation.
func addNumerics(numerics ...Numeric) bson.D {
	fields := bson.D{}
	for _, n := range numerics {
		fields = append(fields, bson.E{Key: n.Alias, Value: coerce("$" + n.Path)})
	}
	return bson.D{{Key: "$addFields", Value: fields}}
}

func coerce(expr string) bson.D {
	return bson.D{{Key: "$convert", Value: bson.D{
		{Key: "input", Value: expr},
		{Key: "to", Value: "double"},
		{Key: "onError", Value: 0},
		{Key: "onNull", Value: 0},
	}}}
}

// profileCollections are joined onto the base collection to build one flat
// profile per employee for the search index.
var profileCollections = []string{
	EmploymentCollection, "learning", "experience", "performance", "engagement", "compensation", "attendance",
}

// Profiles returns every employee as a flat document, sorted by JoinKey.
// Values are projected as stored; callers coerce types.
func (b *Builder) Profiles() Plan {
	var stages mongo.Pipeline
	for _, collection := range profileCollections {
		stages = append(stages, join(collection)...)
	}

	stages = append(stages,
		bson.D{{Key: "$sort", Value: bson.D{{Key: JoinKey, Value: 1}}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: JoinKey, Value: 1},
			{Key: "full_name", Value: 1},
			{Key: "email", Value: 1},
			{Key: "location", Value: 1},
			{Key: "department", Value: "$employment.department"},
			{Key: "role", Value: "$employment.role"},
			{Key: "work_mode", Value: "$employment.work_mode"},
			{Key: "employment_type", Value: "$employment.employment_type"},
			{Key: "certifications", Value: "$learning.certifications"},
			{Key: "total_experience_years", Value: "$experience.total_experience_years"},
			{Key: "performance_rating", Value: "$performance.performance_rating"},
			{Key: "improvement_areas", Value: "$performance.improvement_areas"},
			{Key: "current_project", Value: "$engagement.current_project"},
			{Key: "current_salary", Value: "$compensation.current_salary"},
			{Key: "leave_balance", Value: "$attendance.leave_balance"},
			{Key: "leave_days_taken", Value: "$attendance.leave_days_taken"},
		}}},
	)
	return Plan{Collection: BaseCollection, Stages: stages}
}
