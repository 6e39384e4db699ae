package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/smallnest/rlmcore/rlmerrors"
)

// DefaultDeadline is the wall-clock budget for one script, per spec §4.5.
const DefaultDeadline = 20 * time.Second

// MaxOutput is the captured-stdout truncation limit, per spec §4.5.
const MaxOutput = 16 * 1024

// scriptFileOptions lets scripts use if and for statements at top level,
// outside any function, as model-written snippets routinely do.
var scriptFileOptions = &syntax.FileOptions{
	TopLevelControl: true,
}

// Result is what Evaluate always returns: captured stdout (truncated if
// needed) plus any error's message. Per spec §4.5, errors are never
// returned as Go errors to the engine — they are folded into Result so
// the engine can feed them back to the model as a tool turn.
type Result struct {
	Stdout    string
	Error     string
	Truncated bool
}

// Executor evaluates scripts against a fresh per-turn Starlark thread.
// The document corpus behind docs is stable for the duration of a
// question; nothing else survives across calls.
type Executor struct {
	docs     DocumentAccess
	sub      SubModel
	deadline time.Duration
}

// New creates an Executor. deadline of 0 uses DefaultDeadline.
func New(docs DocumentAccess, sub SubModel, deadline time.Duration) *Executor {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Executor{docs: docs, sub: sub, deadline: deadline}
}

// Evaluate runs script against a fresh environment exposing exactly
// list_documents, get_section, search_document, and llm_query. It never
// returns a non-nil error for script failures; those are captured in
// Result.Error per spec §4.5. A non-nil error indicates the caller's ctx
// was already done before evaluation began.
func (e *Executor) Evaluate(ctx context.Context, script string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &rlmerrors.Cancelled{Reason: err.Error()}
	}

	if err := rejectImport(script); err != nil {
		return Result{Error: err.Error()}, nil
	}

	var out strings.Builder
	truncated := false

	thread := &starlark.Thread{
		Name: "rlm-script",
		Print: func(_ *starlark.Thread, msg string) {
			if truncated {
				return
			}
			if out.Len()+len(msg)+1 > MaxOutput {
				remaining := MaxOutput - out.Len()
				if remaining > 0 {
					out.WriteString(msg[:remaining])
				}
				truncated = true
				return
			}
			out.WriteString(msg)
			out.WriteByte('\n')
		},
		// Load is intentionally left nil: any load(...) call in the script
		// fails with an interpreter error naming the module it could not
		// load. rejectImport
		// above catches the Python-style "import" spelling before we even
		// reach the interpreter, since Starlark's own parser would just
		// report it as an ordinary syntax error.
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	predeclared := e.builtins(deadlineCtx)

	timer := time.AfterFunc(e.deadline, func() {
		thread.Cancel("execution deadline exceeded")
	})
	defer timer.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := starlark.ExecFileOptions(scriptFileOptions, thread, "script.star", script, predeclared)
		done <- err
	}()

	var execErr error
	select {
	case execErr = <-done:
	case <-deadlineCtx.Done():
		thread.Cancel("execution deadline exceeded")
		execErr = <-done // ExecFile returns promptly once cancelled
	}

	res := Result{Stdout: out.String(), Truncated: truncated}
	if execErr != nil {
		res.Error = formatScriptError(execErr)
	}
	return res, nil
}

// formatScriptError strips Starlark's verbose backtrace down to a single
// line suitable for feeding back to the model as a tool turn.
func formatScriptError(err error) string {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return evalErr.Msg
	}
	return err.Error()
}

func rejectImport(script string) error {
	if strings.Contains(script, "import ") || strings.Contains(script, "import(") {
		return fmt.Errorf("module import is denied in this environment")
	}
	return nil
}
