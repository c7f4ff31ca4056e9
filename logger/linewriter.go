package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LineWriter is an io.Writer that emits every complete line written to it
// as a debug log entry. It is used to surface the output of child processes
// and containers.
type LineWriter struct {
	logger *zap.SugaredLogger
	msg    string
	fields []interface{}

	mu  sync.Mutex
	buf strings.Builder
}

// NewLineWriter returns a LineWriter logging each line as msg with the given fields.
func NewLineWriter(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) *LineWriter {
	return &LineWriter{logger: l, msg: msg, fields: keysAndValues}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, rest, found := strings.Cut(w.buf.String(), "\n")
		if !found {
			break
		}
		w.buf.Reset()
		w.buf.WriteString(rest)
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.emit(w.buf.String())
	w.buf.Reset()
}

func (w *LineWriter) emit(line string) {
	if line = strings.TrimSpace(line); line == "" {
		return
	}
	w.logger.Debugw(w.msg, append(w.fields, FieldOutput, line)...)
}
