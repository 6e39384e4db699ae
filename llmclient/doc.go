// Package llmclient wraps the primary and sub-model OpenAI-style chat
// completion endpoints spec §6 names, with the retry/backoff policy of
// spec §7: transient failures retry up to 3 attempts (250ms, 1s, 4s)
// before surfacing rlmerrors.LlmUnavailable.
package llmclient
