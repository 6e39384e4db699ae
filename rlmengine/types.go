package rlmengine

import "time"

// Options are the RlmEngine tunables of spec §4.6's table.
type Options struct {
	MaxIterations     int
	MinCodeExecutions int
	MinAnswerLen      int // runes, not bytes
	ParallelLoops     int
	ScriptDeadline    time.Duration // per-script wall clock, default 20s
	QuestionDeadline  time.Duration // per-question, default 5m
}

// AskResult is what Ask returns on both success and best-effort
// exhaustion, per spec §4.6 steps 5-6.
type AskResult struct {
	Answer          string
	CitedURLs       []string
	Iterations      int
	ScriptCalls     int
	Truncated       bool
	CandidateHashes []string // set only when parallel_loops > 1: one per loop that ended without error
}

// loopResult is the internal result of one single-loop dialogue, prior to
// citation extraction and QaRecord persistence.
type loopResult struct {
	answer          string
	iterations      int
	scriptCalls     int
	truncated       bool
	lastTurn        string   // best-effort fallback if the loop never reaches FINAL
	candidateHashes []string // populated by runParallelLoops, per spec §8 scenario 5
}
