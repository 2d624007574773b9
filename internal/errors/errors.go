// Package errors carries CLI-facing errors: what went wrong, why, and how to
// fix it, plus the process exit code.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/DeusData/symtab-snapshot/internal/coordinator"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// Exit codes.
const (
	ExitSuccess  = 0
	ExitConfig   = 1
	ExitDatabase = 2
	ExitInput    = 4
	ExitNotFound = 6
	ExitPipeline = 7
	ExitInternal = 10
)

// UserError is an error with a diagnostic cause and a suggested fix.
type UserError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

func newError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newError(ExitConfig, msg, cause, fix, err)
}

func NewDatabaseError(msg, cause, fix string, err error) *UserError {
	return newError(ExitDatabase, msg, cause, fix, err)
}

func NewInputError(msg, cause, fix string) *UserError {
	return newError(ExitInput, msg, cause, fix, nil)
}

func NewNotFoundError(msg, cause, fix string) *UserError {
	return newError(ExitNotFound, msg, cause, fix, nil)
}

// NewPipelineError reports a failed snapshot run. The snapshot it was
// writing stays unpromoted.
func NewPipelineError(msg, cause, fix string, err error) *UserError {
	return newError(ExitPipeline, msg, cause, fix, err)
}

func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newError(ExitInternal, msg, cause, fix, err)
}

// FromRun classifies a pipeline error into a UserError with a fix hint.
// UserErrors pass through unchanged.
func FromRun(err error) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}
	switch {
	case stderrors.Is(err, symtab.ErrInvalidMember):
		return NewPipelineError("Input feed contains an invalid member", err.Error(),
			"Re-export the container or fix the member document, then run import again", err)
	case stderrors.Is(err, selector.ErrPaginationFault):
		return NewPipelineError("Reading the input feed failed", err.Error(),
			"Check that the source database is readable and not being rewritten", err)
	case stderrors.Is(err, coordinator.ErrUpsertBatchFailure):
		return NewPipelineError("Writing snapshot records failed", err.Error(),
			"Check free disk space and that no other process holds the database lock", err)
	case stderrors.Is(err, coordinator.ErrMissingContentKey),
		stderrors.Is(err, coordinator.ErrUnresolvedRelationshipTarget):
		return NewInternalError("Snapshot generation produced an inconsistent record", err.Error(),
			"This is a bug. Re-run with --debug and report the log", err)
	}
	return NewPipelineError("Snapshot run failed", err.Error(), "Re-run with --debug for details", err)
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Colors are dropped when noColor
// is set or NO_COLOR is present in the environment.
func (e *UserError) Format(noColor bool) string {
	saved := color.NoColor
	defer func() { color.NoColor = saved }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the machine-readable form of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Print writes err to w and returns the exit code to use. Output is colored
// only when w is a terminal and noColor is unset.
func Print(w io.Writer, err error, jsonOutput, noColor bool) int {
	if err == nil {
		return ExitSuccess
	}
	ue := FromRun(err)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ue.ToJSON())
		return ue.ExitCode
	}
	if f, ok := w.(*os.File); !ok || !IsTerminal(f) {
		noColor = true
	}
	fmt.Fprint(w, ue.Format(noColor))
	return ue.ExitCode
}
