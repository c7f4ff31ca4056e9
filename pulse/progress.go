// Package pulse reports pipeline progress to the terminal or to machine consumers.
package pulse

import "context"

// ProgressEmitter receives progress updates during a pipeline run.
// Implementations must be safe to call from a single goroutine; the pipeline
// never emits concurrently.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces that count items out of total are done.
	// Metadata may carry a "type" describing the items.
	EmitProgress(count, total int, metadata map[string]interface{})

	// EmitComplete announces successful completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}

// NopEmitter discards all progress.
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string) {}
func (NopEmitter) EmitProgress(int, int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{}) {}
func (NopEmitter) EmitError(string, error) {}
func (NopEmitter) EmitInfo(string) {}

type emitterKey struct{}

// WithEmitter returns a context carrying e for the components of a run.
func WithEmitter(ctx context.Context, e ProgressEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// FromContext returns the emitter carried by ctx, or a NopEmitter.
func FromContext(ctx context.Context) ProgressEmitter {
	if e, ok := ctx.Value(emitterKey{}).(ProgressEmitter); ok && e != nil {
		return e
	}
	return NopEmitter{}
}
