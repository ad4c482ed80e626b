// Package oplog defines the domain types for the checkout operation log.
//
// The operation log is a durable audit trail of every transition a checkout
// pipeline goes through. It serves two purposes:
//
//  1. Observability: you can query the DB to see exactly where a checkout
//     is (or was) and correlate it with a distributed trace via trace_id.
//
//  2. Reconciliation: a charge with no matching order record (the known
//     charge-then-persist gap) can be found by scanning for FAILED rows
//     whose last completed stage is the charge.
package oplog

import "time"

// Status represents the lifecycle state of a checkout pipeline run.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStageDone    Status = "STAGE_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusSoftFailures Status = "COMPLETED_WITH_WARNINGS"
	StatusFailed       Status = "FAILED"
)

// Entry is a single row in the checkout_logs table: a point-in-time
// snapshot of one pipeline run.
type Entry struct {
	// CheckoutID is the unique identifier for this pipeline run. The
	// payment intent ID is not known at start, so a fresh UUID is used
	// and joined with business data via the payload.
	CheckoutID string

	// Status is the current lifecycle state.
	Status Status

	// Stage is the name of the stage that was just executed or failed.
	Stage string

	// Payload is the JSON-serialised checkout input (table, order type,
	// tip, totals). Stored once at creation.
	Payload string

	// ErrorMessages accumulates failure details, one per failed stage,
	// stored as a JSON array.
	ErrorMessages string

	// TraceID is the W3C trace ID from the active OpenTelemetry span.
	TraceID string

	// SpanID pinpoints the span within the trace.
	SpanID string

	// UpdatedAt is the wall-clock time of this log entry.
	UpdatedAt time.Time
}
