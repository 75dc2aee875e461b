package query

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// NullsOrder places NULLs in a sort.
type NullsOrder int

const (
	// NullsDefault sorts NULL below every value: first ascending, last descending.
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// OrderBy is one sort key.
type OrderBy struct {
	Field     string
	Direction Direction
	Nulls     NullsOrder
	// Aggregate sorts groups by an aggregate of Field; only valid in groupBy.
	Aggregate AggregateFunc
}

// Ascending sorts by field ascending.
func Ascending(field string) OrderBy { return OrderBy{Field: field, Direction: Asc} }

// Descending sorts by field descending.
func Descending(field string) OrderBy { return OrderBy{Field: field, Direction: Desc} }

// UniqueWhere identifies one record by the values of a unique constraint.
type UniqueWhere map[string]any

// Selection describes which fields and relations a query returns.
//
// Select restricts the scalar output to the named fields; a nil Select
// returns every scalar field. Omit removes fields from the default set.
// Select and Omit are mutually exclusive at the same level.
type Selection struct {
	Select  []string
	Omit    []string
	Include map[string]*Include
}

// Include loads a relation with its own filter, ordering and pagination.
type Include struct {
	Where    Filter
	OrderBy  []OrderBy
	Cursor   UniqueWhere
	Skip     *int
	Take     *int
	Distinct []string
	Selection
}

// Int returns a pointer to n, for Skip and Take.
func Int(n int) *int { return &n }

// FindUniqueArgs are the arguments of findUnique and findUniqueOrThrow.
type FindUniqueArgs struct {
	Where UniqueWhere
	Selection
}

// FindManyArgs are the arguments of findMany, findFirst and findFirstOrThrow.
type FindManyArgs struct {
	Where    Filter
	OrderBy  []OrderBy
	Cursor   UniqueWhere
	Skip     *int
	Take     *int
	Distinct []string
	Selection
}

// CreateArgs are the arguments of create.
type CreateArgs struct {
	Data Data
	Selection
}

// CreateManyArgs are the arguments of createMany and createManyAndReturn.
type CreateManyArgs struct {
	Data           []Data
	SkipDuplicates bool
	Selection
}

// UpdateArgs are the arguments of update.
type UpdateArgs struct {
	Where UniqueWhere
	Data  Data
	Selection
}

// UpdateManyArgs are the arguments of updateMany and updateManyAndReturn.
type UpdateManyArgs struct {
	Where Filter
	Data  Data
	Selection
}

// UpsertArgs are the arguments of upsert.
type UpsertArgs struct {
	Where  UniqueWhere
	Create Data
	Update Data
	Selection
}

// DeleteArgs are the arguments of delete.
type DeleteArgs struct {
	Where UniqueWhere
	Selection
}

// DeleteManyArgs are the arguments of deleteMany.
type DeleteManyArgs struct {
	Where Filter
}

// CountArgs are the arguments of count.
type CountArgs struct {
	Where   Filter
	OrderBy []OrderBy
	Cursor  UniqueWhere
	Skip    *int
	Take    *int
}

// Aggregates lists the fields each aggregate applies to. Count accepts "_all"
// to count records.
type Aggregates struct {
	Count []string
	Sum   []string
	Avg   []string
	Min   []string
	Max   []string
}

// Empty reports whether no aggregate was requested.
func (a Aggregates) Empty() bool {
	return len(a.Count)+len(a.Sum)+len(a.Avg)+len(a.Min)+len(a.Max) == 0
}

// AggregateArgs are the arguments of aggregate.
type AggregateArgs struct {
	Where   Filter
	OrderBy []OrderBy
	Cursor  UniqueWhere
	Skip    *int
	Take    *int
	Aggregates
}

// GroupByArgs are the arguments of groupBy.
type GroupByArgs struct {
	By      []string
	Where   Filter
	Having  Filter
	OrderBy []OrderBy
	Skip    *int
	Take    *int
	Aggregates
}

// AllRecords is the Count target that counts records rather than non-null values.
const AllRecords = "_all"
