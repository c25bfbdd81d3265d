// Package gate validates message content before it enters a session.
//
// The gate wraps an Evaluator behind a hard timeout and fails closed: when
// the evaluator errors or the deadline expires, the content is rejected with
// reason EvaluatorUnavailable rather than passed through unvalidated. A
// rule-based evaluator is provided for local operation.
package gate
