package ir

// BinaryOperator identifies a BinaryOp.
type BinaryOperator string

const (
	OpEq       BinaryOperator = "=="
	OpNeq      BinaryOperator = "!="
	OpAnd      BinaryOperator = "&&"
	OpOr       BinaryOperator = "||"
	OpLt       BinaryOperator = "<"
	OpLte      BinaryOperator = "<="
	OpGt       BinaryOperator = ">"
	OpGte      BinaryOperator = ">="
	OpAdd      BinaryOperator = "+"
	OpSub      BinaryOperator = "-"
	OpMul      BinaryOperator = "*"
	OpDiv      BinaryOperator = "/"
	OpMod      BinaryOperator = "%"
	OpConcat   BinaryOperator = "concat"
	OpLike     BinaryOperator = "like"
	OpContains BinaryOperator = "contains"
)

// ValidBinaryOperators lists the binary operators the compiler understands.
var ValidBinaryOperators = map[BinaryOperator]bool{
	OpEq: true, OpNeq: true, OpAnd: true, OpOr: true,
	OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
	OpConcat: true, OpLike: true, OpContains: true,
}

// IsPredicate reports whether the operator produces a boolean expression.
func (op BinaryOperator) IsPredicate() bool {
	switch op {
	case OpEq, OpNeq, OpAnd, OpOr, OpLt, OpLte, OpGt, OpGte, OpLike, OpContains:
		return true
	}
	return false
}

// UnaryOperator identifies a UnaryOp.
type UnaryOperator string

const (
	OpNot      UnaryOperator = "!"
	OpNeg      UnaryOperator = "-"
	OpIsEmpty  UnaryOperator = "isEmpty"
	OpNonEmpty UnaryOperator = "nonEmpty"
)

// ValidUnaryOperators lists the unary operators the compiler understands.
var ValidUnaryOperators = map[UnaryOperator]bool{
	OpNot: true, OpNeg: true, OpIsEmpty: true, OpNonEmpty: true,
}

// AggregationOperator identifies an Aggregation.
type AggregationOperator string

const (
	AggMin  AggregationOperator = "min"
	AggMax  AggregationOperator = "max"
	AggAvg  AggregationOperator = "avg"
	AggSum  AggregationOperator = "sum"
	AggSize AggregationOperator = "size"
)

// ValidAggregationOperators lists the aggregation operators.
var ValidAggregationOperators = map[AggregationOperator]bool{
	AggMin: true, AggMax: true, AggAvg: true, AggSum: true, AggSize: true,
}

// JoinKind identifies the kind of a FlatJoin.
type JoinKind string

const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
	RightJoin JoinKind = "right"
	FullJoin  JoinKind = "full"
)

// ValidJoinKinds lists the supported join kinds.
var ValidJoinKinds = map[JoinKind]bool{
	InnerJoin: true, LeftJoin: true, RightJoin: true, FullJoin: true,
}

// Ordering describes the direction of a SortBy criterion.
//
// This is a sealed interface: PropertyOrdering for a single criterion,
// TupleOrdering for one ordering per element of a tuple criterion.
type Ordering interface {
	orderingNode()
}

// PropertyOrdering is a single sort direction.
type PropertyOrdering string

func (PropertyOrdering) orderingNode() {}

const (
	Asc            PropertyOrdering = "asc"
	Desc           PropertyOrdering = "desc"
	AscNullsFirst  PropertyOrdering = "ascNullsFirst"
	DescNullsFirst PropertyOrdering = "descNullsFirst"
	AscNullsLast   PropertyOrdering = "ascNullsLast"
	DescNullsLast  PropertyOrdering = "descNullsLast"
)

// ValidOrderings lists the single sort directions.
var ValidOrderings = map[PropertyOrdering]bool{
	Asc: true, Desc: true,
	AscNullsFirst: true, DescNullsFirst: true,
	AscNullsLast: true, DescNullsLast: true,
}

// TupleOrdering applies one ordering per tuple element.
type TupleOrdering []Ordering

func (TupleOrdering) orderingNode() {}
