package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// JSONLWriter writes records as newline-delimited JSON.
//
// JSONLWriter is safe for concurrent use; each record is written as one
// whole line under a mutex.
type JSONLWriter struct {
	w       io.Writer
	runID   string
	backend string
	now     func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter returns a writer tagging every record with runID and backend.
func NewJSONLWriter(w io.Writer, runID, backend string) *JSONLWriter {
	return &JSONLWriter{
		w:       w,
		runID:   runID,
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (jw *JSONLWriter) WriteEntry(ctx context.Context, e *EntryRecord) error {
	return jw.writeRecord(ctx, TypeEntry, e)
}

func (jw *JSONLWriter) WriteResult(ctx context.Context, r *ResultRecord) error {
	return jw.writeRecord(ctx, TypeResult, r)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, e *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, e)
}

func (jw *JSONLWriter) WriteSkip(ctx context.Context, s *SkipRecord) error {
	return jw.writeRecord(ctx, TypeSkip, s)
}

func (jw *JSONLWriter) WritePreflight(ctx context.Context, p *PreflightRecord) error {
	return jw.writeRecord(ctx, TypePreflight, p)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, s *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, s)
}

// Close marks the writer closed. The underlying writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	line, err := json.Marshal(Record{
		Type:    recordType,
		TS:      jw.now(),
		RunID:   jw.runID,
		Backend: jw.backend,
		Data:    payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return a short write with a nil error; a partial line
	// would corrupt the stream.
	if err := writeAll(jw.w, append(line, '\n')); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
