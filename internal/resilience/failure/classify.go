// Package failure provides a single shared error classifier for the resilience core.
// The transactional executor and the generic retry executor both route errors through
// Classify so the two code paths can never drift apart in what they consider retryable.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind identifies the failure category of a classified error.
type Kind string

const (
	KindConnection    Kind = "connection"
	KindDeadlock      Kind = "deadlock"
	KindSerialization Kind = "serialization"
	KindTimeout       Kind = "timeout"
	KindPolicy        Kind = "policy"
	KindUnknown       Kind = "unknown"
)

// SQLSTATE codes that indicate a transaction is worth retrying.
const (
	sqlstateDeadlockDetected    = "40P01"
	sqlstateSerializationFail   = "40001"
	sqlstateInFailedTransaction = "25P02"
	sqlstateQueryCanceled       = "57014"
)

// ClassifiedError wraps an underlying error with its failure category and
// whether the resilience core may retry the operation that produced it.
type ClassifiedError struct {
	Kind      Kind
	Retryable bool
	SQLState  string
	Err       error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("%s (sqlstate %s): %v", e.Kind, e.SQLState, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the original error for errors.Is / errors.As chains.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// PolicyError marks a business-policy or client error that must never be
// retried or dead-lettered. A webhook handler rejecting a payload with a 422
// is a policy error; retrying it would only repeat the rejection.
type PolicyError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("policy error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("policy error: %s", e.Message)
}

// statusCoder is satisfied by errors that carry an upstream status code, such
// as API client errors. Codes below 500 are client errors and never retried.
type statusCoder interface {
	StatusCode() int
}

// noRetrier is satisfied by errors that explicitly opt out of retries.
type noRetrier interface {
	NoRetry() bool
}

// Classify inspects an error and returns its failure category.
//
// Classification rules, in order:
//  1. nil stays nil.
//  2. Policy errors (explicit no-retry marker, PolicyError, or a status code
//     below 500) are never retryable.
//  3. SQLSTATE 40P01, 40001, 25P02 and 57014 are deadlock/serialization class
//     failures and always retryable, as are errors whose message mentions a
//     deadlock, serialization failure, or concurrent update.
//  4. context.DeadlineExceeded is a timeout: retryable, the transaction
//     executor rolls back and tries again with a longer adaptive timeout.
//  5. Connection-level failures (refused, reset, unreachable, net timeouts)
//     are retryable; the pool recovers lazily.
//  6. Everything else is Unknown and not retryable.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// Already classified; pass through unchanged.
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if kind, ok := classifyPolicy(err); ok {
		return &ClassifiedError{Kind: kind, Retryable: false, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateDeadlockDetected:
			return &ClassifiedError{Kind: KindDeadlock, Retryable: true, SQLState: pgErr.Code, Err: err}
		case sqlstateSerializationFail:
			return &ClassifiedError{Kind: KindSerialization, Retryable: true, SQLState: pgErr.Code, Err: err}
		case sqlstateInFailedTransaction:
			return &ClassifiedError{Kind: KindSerialization, Retryable: true, SQLState: pgErr.Code, Err: err}
		case sqlstateQueryCanceled:
			return &ClassifiedError{Kind: KindTimeout, Retryable: true, SQLState: pgErr.Code, Err: err}
		}
	}

	if kind, ok := classifyMessage(err); ok {
		return &ClassifiedError{Kind: kind, Retryable: true, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Kind: KindTimeout, Retryable: true, Err: err}
	}

	if isConnectionError(err) {
		return &ClassifiedError{Kind: KindConnection, Retryable: true, Err: err}
	}

	return &ClassifiedError{Kind: KindUnknown, Retryable: false, Err: err}
}

// IsPolicy reports whether an error is a policy/client error that must be
// surfaced immediately without retries or dead-lettering.
func IsPolicy(err error) bool {
	_, ok := classifyPolicy(err)
	return ok
}

func classifyPolicy(err error) (Kind, bool) {
	var nr noRetrier
	if errors.As(err, &nr) && nr.NoRetry() {
		return KindPolicy, true
	}

	var pe *PolicyError
	if errors.As(err, &pe) {
		return KindPolicy, true
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code > 0 && code < 500 {
			return KindPolicy, true
		}
	}

	return "", false
}

func classifyMessage(err error) (Kind, bool) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "could not serialize access"):
		return KindSerialization, true
	case strings.Contains(msg, "deadlock"):
		return KindDeadlock, true
	case strings.Contains(msg, "concurrent update"):
		return KindSerialization, true
	}
	return "", false
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
