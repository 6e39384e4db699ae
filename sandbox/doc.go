// Package sandbox implements the SandboxExecutor of spec §4.5: it
// evaluates a script string against a fresh per-turn Starlark environment
// exposing exactly the four document-access primitives, with module
// imports, file I/O, and dynamic evaluation denied by construction, and a
// wall-clock deadline enforced via thread cancellation.
package sandbox
