package executor

// Result is the generic query result returned to the caller. Offsets are the
// primary table row offsets the rows were materialized from, in output order.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Offsets []int32  `json:"offsets,omitempty"`
}
