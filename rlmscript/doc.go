// Package rlmscript implements the ScriptParser of spec §4.4: it
// classifies a single assistant turn as a fenced `repl` script, a FINAL(...)
// terminal, or plain prose, extracting the relevant body in each case.
package rlmscript
