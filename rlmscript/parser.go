package rlmscript

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a single assistant turn, per spec §4.4.
type Kind int

const (
	// KindNeither is plain prose: no fenced script, no FINAL terminal.
	KindNeither Kind = iota
	// KindScript is one or more fenced ```repl blocks.
	KindScript
	// KindFinal is a FINAL(...) terminal appearing outside any fence.
	KindFinal
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindFinal:
		return "final"
	default:
		return "neither"
	}
}

// Result is the parsed classification of one turn.
type Result struct {
	Kind       Kind
	ScriptBody string // concatenated fenced bodies, blank-line separated
	FinalBody  string // verbatim inner expression of FINAL(...)
}

// ErrUnterminatedFence is returned when a turn opens a ```repl fence that
// never closes.
var ErrUnterminatedFence = errors.New("rlmscript: unterminated fenced block")

const fenceOpen = "```repl"
const fenceClose = "```"

type fence struct {
	start, end int // byte span of the whole fence, opening and closing markers included
	body       string
}

// Parse classifies turn per spec §4.4's precedence rule: if both a fenced
// script and a FINAL form are present, FINAL wins only if it appears
// outside every fenced block; otherwise the turn is Script.
func Parse(turn string) (Result, error) {
	fences, err := extractFences(turn)
	if err != nil {
		return Result{}, err
	}

	finalStart, finalEnd, finalBody, hasFinal := extractFinal(turn)

	if hasFinal && !withinAnyFence(finalStart, finalEnd, fences) {
		return Result{Kind: KindFinal, FinalBody: finalBody}, nil
	}

	if len(fences) > 0 {
		bodies := make([]string, len(fences))
		for i, f := range fences {
			bodies[i] = f.body
		}
		return Result{Kind: KindScript, ScriptBody: strings.Join(bodies, "\n\n")}, nil
	}

	return Result{Kind: KindNeither}, nil
}

func withinAnyFence(start, end int, fences []fence) bool {
	for _, f := range fences {
		if start >= f.start && end <= f.end {
			return true
		}
	}
	return false
}

// extractFences finds every ```repl ... ``` block in document order,
// returning the byte span and trimmed body of each. An opened fence with
// no matching close is a parse error.
func extractFences(turn string) ([]fence, error) {
	var fences []fence
	pos := 0

	for {
		openIdx := strings.Index(turn[pos:], fenceOpen)
		if openIdx < 0 {
			break
		}
		openIdx += pos

		bodyStart := openIdx + len(fenceOpen)
		if bodyStart < len(turn) && turn[bodyStart] == '\n' {
			bodyStart++
		}

		closeIdx := strings.Index(turn[bodyStart:], fenceClose)
		if closeIdx < 0 {
			return nil, fmt.Errorf("%w: opened at byte %d", ErrUnterminatedFence, openIdx)
		}
		closeIdx += bodyStart

		body := strings.TrimRight(turn[bodyStart:closeIdx], "\n")
		fences = append(fences, fence{start: openIdx, end: closeIdx + len(fenceClose), body: body})

		pos = closeIdx + len(fenceClose)
	}

	return fences, nil
}

// extractFinal locates a FINAL( ... ) terminal with balanced parentheses,
// which may span multiple lines and contain nested parens. It returns the
// byte span of the whole "FINAL(...)" form and the verbatim inner text.
func extractFinal(turn string) (start, end int, body string, ok bool) {
	idx := strings.Index(turn, "FINAL(")
	if idx < 0 {
		return 0, 0, "", false
	}

	depth := 0
	innerStart := idx + len("FINAL(")
	for i := innerStart; i < len(turn); i++ {
		switch turn[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return idx, i + 1, turn[innerStart:i], true
			}
			depth--
		}
	}

	return 0, 0, "", false
}
