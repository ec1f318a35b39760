package schema

// BlockResult is what every runner returns. Data is a delta merged into the
// run's data bag by shallow key override — never the full bag. NextSectionID
// is set only by branch blocks and overrides default section advancement.
type BlockResult struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
	NextSectionID string         `json:"nextSectionId,omitempty"`

	// Output is the raw block output (a list variable, a record id, a write
	// result) persisted to the block's virtual step after a successful
	// execution. Not serialized; Data remains the only delta merged into
	// the bag.
	Output any `json:"-"`
}

// OK returns a successful result with the given data delta.
func OK(data map[string]any) *BlockResult {
	return &BlockResult{Success: true, Data: data}
}

// Fail returns a failed result carrying one or more error strings.
func Fail(errs ...string) *BlockResult {
	return &BlockResult{Success: false, Errors: errs}
}

// Failf returns a failed result from a FlowError, keeping the human-readable
// message only; callers never see codes or stack detail.
func FailErr(err error) *BlockResult {
	if err == nil {
		return Fail("unknown error")
	}
	if fe, ok := err.(*FlowError); ok {
		return Fail(fe.Message)
	}
	return Fail(err.Error())
}

// AddWarning appends a non-fatal error string without flipping Success.
// Used for persistence warnings after a successful primary operation.
func (r *BlockResult) AddWarning(msg string) {
	r.Errors = append(r.Errors, msg)
}
