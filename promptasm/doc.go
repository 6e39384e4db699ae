// Package promptasm implements the PromptAssembler of spec §4.6 step 2:
// it builds the system prompt for a question from the topic's documents,
// the four fixed sandbox primitive signatures, and any url_context values
// verbatim.
package promptasm
