// Package logger implements the log service. It registers itself as
// ".logger" and writes every message it receives as one line prefixed by
// the sender handle.
package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/najoast/uboss/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Name is the module name of the log service.
const Name = "logger"

// Module creates log service instances.
var Module core.Module = core.ModuleFunc(func() core.Instance { return &Logger{} })

// Logger is one log service instance.
type Logger struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  *zap.Logger
}

// Init opens args as the output file, truncating it, or writes to stdout
// when args is empty.
func (l *Logger) Init(ctx *core.Context, args string) error {
	ws := zapcore.AddSync(os.Stdout)
	if args != "" {
		f, err := os.Create(args)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l.path = args
		l.file = f
		ws = f
	}
	l.log = newLogger(ws)

	ctx.Callback(l, callback)
	ctx.Command("REG", "."+Name)
	return nil
}

func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	// message only: every line is "[:%08x] text"
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(ws), zapcore.DebugLevel))
}

func callback(ctx *core.Context, ud any, typ core.MessageType, session int32, source core.Handle, data []byte) bool {
	l := ud.(*Logger)
	l.mu.Lock()
	l.log.Info(fmt.Sprintf("[%s] %s", source, data))
	l.mu.Unlock()
	return false
}

// Signal reopens the output file in append mode, for log rotation. It is
// a no-op when writing to stdout.
func (l *Logger) Signal(sig int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Error(fmt.Sprintf("reopen %s: %v", l.path, err))
		return
	}
	_ = l.log.Sync()
	_ = l.file.Close()
	l.file = f
	l.log = newLogger(f)
}

// Release flushes and closes the output file.
func (l *Logger) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.log != nil {
		_ = l.log.Sync()
	}
	if l.file != nil {
		_ = l.file.Close()
	}
}
