// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes a shared failure classifier, a generic retry executor with dead-letter
// escalation, and circuit breakers protecting external dependencies.
//
// Subpackages:
//   - failure: single shared error classification used by every retry path
//   - retry: bounded exponential backoff with jitter and dead-letter escalation
//   - deadletter: best-effort persistence of permanently failed operations
//   - circuitbreaker: gobreaker-based protection for the database and sinks
package resilience
