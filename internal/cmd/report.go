package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/zonestore/pkg/output"
)

// reporter prints per-key results of bulk commands, either as plain key
// lines or as JSONL records. It is safe for concurrent use.
type reporter struct {
	op    string
	start time.Time

	mu    sync.Mutex
	out   io.Writer
	jsonl *output.JSONLWriter

	count  atomic.Int64
	bytes  atomic.Int64
	errors atomic.Int64
}

func newReporter(out io.Writer, op, backend string, jsonl bool) *reporter {
	r := &reporter{op: op, start: time.Now(), out: out}
	if jsonl {
		r.jsonl = output.NewJSONLWriter(out, runID, backend)
	}
	return r
}

// ok records a successful key.
func (r *reporter) ok(ctx context.Context, rec *output.ResultRecord) error {
	r.count.Add(1)
	r.bytes.Add(rec.Size)
	if r.jsonl != nil {
		rec.Op = r.op
		return r.jsonl.WriteResult(ctx, rec)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.out, rec.Key)
	return err
}

// fail records a failed key. Text mode leaves reporting to the returned
// command error.
func (r *reporter) fail(ctx context.Context, key string, err error) {
	r.errors.Add(1)
	if r.jsonl == nil {
		return
	}
	// The group context is already cancelled when the first failure lands.
	_ = r.jsonl.WriteError(context.WithoutCancel(ctx), &output.ErrorRecord{
		Op:      r.op,
		Key:     key,
		Code:    recordCode(err),
		Message: err.Error(),
	})
}

// close writes the summary record in JSONL mode.
func (r *reporter) close(ctx context.Context) error {
	if r.jsonl == nil {
		return nil
	}
	defer func() { _ = r.jsonl.Close() }()
	return r.jsonl.WriteSummary(ctx, &output.SummaryRecord{
		Op:       r.op,
		Count:    r.count.Load(),
		Bytes:    r.bytes.Load(),
		Errors:   r.errors.Load(),
		Duration: time.Since(r.start).String(),
	})
}
