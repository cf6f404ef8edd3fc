// Package llm generates post text with the OpenAI chat completions API,
// either as one response or as a stream of deltas.
package llm
