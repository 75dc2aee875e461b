package query

// Data is a mutation payload. Scalar fields map to a value or an Atomic
// update; relation fields map to a RelationWrite.
type Data map[string]any

// AtomicOp is an in-place numeric update.
type AtomicOp string

// Atomic operations.
const (
	Set       AtomicOp = "set"
	Increment AtomicOp = "increment"
	Decrement AtomicOp = "decrement"
	Multiply  AtomicOp = "multiply"
	Divide    AtomicOp = "divide"
)

// Atomic updates a numeric field relative to its stored value.
type Atomic struct {
	Op    AtomicOp
	Value any
}

// Inc adds n to the stored value.
func Inc(n any) Atomic { return Atomic{Op: Increment, Value: n} }

// Dec subtracts n from the stored value.
func Dec(n any) Atomic { return Atomic{Op: Decrement, Value: n} }

// Mul multiplies the stored value by n.
func Mul(n any) Atomic { return Atomic{Op: Multiply, Value: n} }

// Div divides the stored value by n.
func Div(n any) Atomic { return Atomic{Op: Divide, Value: n} }

// RelationWrite is a nested write through a relation field.
type RelationWrite struct {
	Create          []Data
	Connect         []UniqueWhere
	ConnectOrCreate []ConnectOrCreate
	// Disconnect unlinks the listed records of a to-many relation.
	Disconnect []UniqueWhere
	// DisconnectCurrent unlinks the record of a to-one relation.
	DisconnectCurrent bool
}

// ConnectOrCreate connects the record matching Where, creating it from Create if absent.
type ConnectOrCreate struct {
	Where  UniqueWhere
	Create Data
}

// CreateRelated nests creates of related records.
func CreateRelated(data ...Data) RelationWrite { return RelationWrite{Create: data} }

// ConnectTo links existing related records.
func ConnectTo(where ...UniqueWhere) RelationWrite { return RelationWrite{Connect: where} }

// Record is a shaped result. Scalars hold canonical Go values; to-one
// relations hold a Record or nil and to-many relations a []Record.
type Record map[string]any

// BatchPayload reports the number of records a batch mutation affected.
type BatchPayload struct {
	Count int64
}

// AggregateResult holds aggregate values keyed by field. Count is keyed by
// field name or AllRecords.
type AggregateResult struct {
	Count map[string]int64
	Sum   map[string]any
	Avg   map[string]any
	Min   map[string]any
	Max   map[string]any
}
