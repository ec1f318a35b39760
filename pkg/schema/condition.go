package schema

// ComparisonOperator is the closed operator set of the condition DSL.
type ComparisonOperator string

const (
	OpEquals      ComparisonOperator = "equals"
	OpNotEquals   ComparisonOperator = "not_equals"
	OpContains    ComparisonOperator = "contains"
	OpGreaterThan ComparisonOperator = "greater_than"
	OpLessThan    ComparisonOperator = "less_than"
	OpIsEmpty     ComparisonOperator = "is_empty"
	OpIsNotEmpty  ComparisonOperator = "is_not_empty"

	// OpRegex and OpExpression are only valid on assertions, not on plain
	// run conditions.
	OpRegex ComparisonOperator = "regex"
)

// Condition compares one dot-path key of the data bag against a value.
type Condition struct {
	Key   string             `json:"key"`
	Op    ComparisonOperator `json:"op"`
	Value any                `json:"value,omitempty"`
}

// AssertExpression is the assertion variant used by validate blocks. It adds
// the regex operator and an optional CEL expression evaluated over the data
// bag; Message overrides the generated failure text.
type AssertExpression struct {
	Key        string             `json:"key,omitempty"`
	Op         ComparisonOperator `json:"op,omitempty"`
	Value      any                `json:"value,omitempty"`
	Expression string             `json:"expression,omitempty"`
	Message    string             `json:"message,omitempty"`
}
