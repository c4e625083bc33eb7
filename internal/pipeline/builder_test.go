package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func operators(p mongo.Pipeline) []string {
	ops := make([]string, len(p))
	for i, stage := range p {
		ops[i] = stage[0].Key
	}
	return ops
}

func stage(t *testing.T, p mongo.Pipeline, op string) bson.D {
	t.Helper()
	for _, s := range p {
		if s[0].Key == op {
			v, ok := s[0].Value.(bson.D)
			require.True(t, ok, "stage %s is not a document", op)
			return v
		}
	}
	t.Fatalf("stage %s not found in %v", op, operators(p))
	return nil
}

func TestCountPlanWithFilters(t *testing.T) {
	plan := NewBuilder(0).Count(Filter{Department: "IT", Role: "Developer"})

	assert.Equal(t, BaseCollection, plan.Collection)
	assert.Equal(t, []string{"$lookup", "$unwind", "$match", "$count"}, operators(plan.Stages))

	lookup := stage(t, plan.Stages, "$lookup").Map()
	assert.Equal(t, "employment", lookup["from"])
	assert.Equal(t, "employee_id", lookup["localField"])
	assert.Equal(t, "employee_id", lookup["foreignField"])

	unwind := stage(t, plan.Stages, "$unwind").Map()
	assert.Equal(t, true, unwind["preserveNullAndEmptyArrays"])

	match := stage(t, plan.Stages, "$match").Map()
	assert.Equal(t, "IT", match["employment.department"])
	assert.Equal(t, "Developer", match["employment.role"])

	assert.Equal(t, "total", plan.Stages[len(plan.Stages)-1][0].Value)
}

func TestCountPlanWithoutFiltersHasNoMatch(t *testing.T) {
	plan := NewBuilder(0).Count(Filter{})
	assert.Equal(t, []string{"$lookup", "$unwind", "$count"}, operators(plan.Stages))
}

func TestRankingPlanLeaveBalanceAscending(t *testing.T) {
	plan, err := NewBuilder(0).Ranking(Filter{}, "leave_balance", true)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"$lookup", "$unwind", "$lookup", "$unwind", "$addFields", "$sort", "$limit", "$project"},
		operators(plan.Stages))

	add := stage(t, plan.Stages, "$addFields").Map()
	require.Contains(t, add, "leave_balance_num")
	require.Contains(t, add, "leave_taken_num")
	convert := add["leave_balance_num"].(bson.D).Map()["$convert"].(bson.D).Map()
	assert.Equal(t, "$attendance.leave_balance", convert["input"])
	assert.Equal(t, 0, convert["onError"])
	assert.Equal(t, 0, convert["onNull"])

	sort := stage(t, plan.Stages, "$sort")
	assert.Equal(t, "leave_balance_num", sort[0].Key)
	assert.Equal(t, 1, sort[0].Value)

	for _, s := range plan.Stages {
		if s[0].Key == "$limit" {
			assert.Equal(t, DefaultRankingLimit, s[0].Value)
		}
	}

	project := stage(t, plan.Stages, "$project").Map()
	assert.Equal(t, "$leave_balance_num", project["leave_balance"])
	assert.Equal(t, "$leave_taken_num", project["leave_taken"])
	assert.Equal(t, "$leave_balance_num", project["sort_value"])
	assert.Equal(t, "$employment.department", project["department"])
	assert.NotContains(t, project, "performance_rating")
}

func TestRankingPlanProjectionDependsOnField(t *testing.T) {
	b := NewBuilder(5)

	perf, err := b.Ranking(Filter{Department: "Sales"}, "performance_rating", false)
	require.NoError(t, err)
	project := stage(t, perf.Stages, "$project").Map()
	assert.Contains(t, project, "performance_rating")
	assert.NotContains(t, project, "leave_taken")
	assert.Equal(t, -1, stage(t, perf.Stages, "$sort")[0].Value)

	salary, err := b.Ranking(Filter{}, "salary", false)
	require.NoError(t, err)
	project = stage(t, salary.Stages, "$project").Map()
	assert.Equal(t, "$salary_num", project["salary"])

	lookups := 0
	for _, s := range salary.Stages {
		if s[0].Key == "$lookup" {
			lookups++
		}
	}
	assert.Equal(t, 2, lookups)
	assert.Equal(t, 5, b.RankingLimit())
}

func TestRankingDefaultsAndUnknownField(t *testing.T) {
	b := NewBuilder(0)

	plan, err := b.Ranking(Filter{}, "", false)
	require.NoError(t, err)
	assert.Equal(t, "performance_rating_num", stage(t, plan.Stages, "$sort")[0].Key)

	_, err = b.Ranking(Filter{}, "shoe_size", false)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestAnalyticsPlanAggregatesSummary(t *testing.T) {
	plan := NewBuilder(0).Analytics(Filter{Role: "Manager"})

	match := stage(t, plan.Stages, "$match").Map()
	assert.Equal(t, "Manager", match["employment.role"])

	group := stage(t, plan.Stages, "$group").Map()
	assert.Nil(t, group["_id"])
	for _, key := range []string{"count", "avg_performance", "avg_salary", "max_salary", "min_performance"} {
		assert.Contains(t, group, key)
	}
	add := stage(t, plan.Stages, "$addFields").Map()
	assert.Contains(t, add, "performance_rating_num")
	assert.Contains(t, add, "salary_num")
}

func TestComparisonPlan(t *testing.T) {
	b := NewBuilder(0)

	plan, err := b.Comparison(Filter{}, GroupByDepartment)
	require.NoError(t, err)
	group := stage(t, plan.Stages, "$group").Map()
	assert.Equal(t, "$employment.department", group["_id"])
	assert.Contains(t, group, "avg_rating")

	_, err = b.Comparison(Filter{}, GroupBy("location"))
	assert.Error(t, err)
}

func TestLocationFilterTargetsBaseCollection(t *testing.T) {
	plan := NewBuilder(0).Count(Filter{Location: "Chennai"})
	match := stage(t, plan.Stages, "$match").Map()
	assert.Equal(t, "Chennai", match["location"])
}

func TestRankFieldsTable(t *testing.T) {
	require.Len(t, rankFields, 3)
	for _, f := range rankFields {
		require.NotEmpty(t, f.Numerics, f.Name)
		require.NotEmpty(t, f.Columns, f.Name)
	}
	f, err := LookupRankField("performance_rating")
	require.NoError(t, err)
	assert.Equal(t, "performance rating", f.Label)
}

func TestProfilesJoinsEveryCollection(t *testing.T) {
	plan := NewBuilder(0).Profiles()

	assert.Equal(t, BaseCollection, plan.Collection)
	assert.Len(t, plan.Stages, len(profileCollections)*2+2)

	first := plan.Stages[0][0]
	assert.Equal(t, "$lookup", first.Key)

	last := plan.Stages[len(plan.Stages)-1][0]
	assert.Equal(t, "$project", last.Key)
}
