// Package llm provides a provider-neutral completion client for the risk and
// chat pipelines. It supports OpenAI, Anthropic and Gemini over plain HTTP,
// and a Guard that adds per-call timeouts, a single retry, rate limiting,
// a circuit breaker and caching of deterministic requests.
package llm
