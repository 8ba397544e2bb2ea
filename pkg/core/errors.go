package core

import "fmt"

// ParseError reports a spreadsheet or heavy-water field that could not be read.
// Row and Column are 0-based; Error renders them 1-based.
type ParseError struct {
	Row    int
	Column int // -1 when the whole row is at fault
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("row %d", e.Row+1)
	if e.Column >= 0 {
		msg = fmt.Sprintf("%s, column %d", msg, e.Column+1)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Value != "" {
		msg = fmt.Sprintf("%s: invalid value %q", msg, e.Value)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
