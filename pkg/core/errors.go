package core

import (
	"fmt"
	"strings"
)

// InputError indicates malformed caller input. It is raised before any
// statement reaches the store.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// ErrInput creates an InputError with a formatted message.
func ErrInput(format string, args ...any) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// SchemaConflictError indicates the live schema of a table could not be
// read or parsed. Raw carries the store's response when there was one.
type SchemaConflictError struct {
	Table string
	Raw   string
	Err   error
}

func (e *SchemaConflictError) Error() string {
	msg := fmt.Sprintf("could not read live schema of %s", e.Table)
	if e.Raw != "" {
		msg += ": " + e.Raw
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaConflictError) Unwrap() error { return e.Err }

// RemoteExecutionError wraps a failure reported by the store while running a
// statement. The store's error text is kept verbatim.
type RemoteExecutionError struct {
	Op        string
	Table     string
	Statement string
	Err       error
}

func (e *RemoteExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Table != "" {
		fmt.Fprintf(&b, " on %s", e.Table)
	}
	b.WriteString(" failed")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteExecutionError) Unwrap() error { return e.Err }

// ErrRemote wraps err as a RemoteExecutionError. A nil err returns nil.
func ErrRemote(op, table, statement string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteExecutionError{Op: op, Table: table, Statement: statement, Err: err}
}

// ConsistencyError indicates that metadata mappings for one target table
// disagree on their transformation rule.
type ConsistencyError struct {
	TargetTable string
	Rules       []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent metadata for %s: %d distinct transformation rules", e.TargetTable, len(e.Rules))
}
