// Package rlmengine implements the RlmEngine of spec §4.6: it drives the
// turn-by-turn dialogue with the primary LLM, mediates the ScriptParser
// and SandboxExecutor, enforces termination (max_iterations,
// min_code_executions, min_answer_len), extracts citations, and persists
// a QaRecord per answered question.
package rlmengine
