package batch

import (
	"context"
	"fmt"
)

// Item is one unit of work. ID must be unique within a batch and is the key of
// the result mapping; Seq records the submission position for callers that need
// to restore order.
type Item struct {
	ID    string
	Seq   int
	Input string
}

// Result is the outcome of processing one Item. Exactly one of Output or Err is
// meaningful: Err is empty on success.
type Result struct {
	ID       string
	Seq      int
	Output   string
	Err      string
	Attempts int
}

// Failed reports whether the result records a failure.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Text renders the result the way it is stored in a snapshot: the output on
// success, an error description otherwise.
func (r Result) Text() string {
	if !r.Failed() {
		return r.Output
	}
	return fmt.Sprintf("Error processing item after %d attempts: %s", r.Attempts, r.Err)
}

// Success builds a successful result for item.
func Success(item Item, output string, attempts int) Result {
	return Result{ID: item.ID, Seq: item.Seq, Output: output, Attempts: attempts}
}

// Failure builds a failed result for item.
func Failure(item Item, err error, attempts int) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{ID: item.ID, Seq: item.Seq, Err: msg, Attempts: attempts}
}

// ProcessFunc turns one Item into a Result. Implementations must not panic and
// must report failures through the Result rather than by blocking forever.
type ProcessFunc func(ctx context.Context, item Item) Result

// CallFunc is a single external call for one Item, such as a model request.
type CallFunc func(ctx context.Context, item Item) (string, error)
