// Package rlmlog provides a small, leveled logging interface for the RLM
// core, with a github.com/kataras/golog-backed default implementation.
package rlmlog
