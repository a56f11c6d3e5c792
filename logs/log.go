package logs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5
)

var logLevel atomic.Int32

// 全局 Logger 实例
var logger atomic.Pointer[Logger]

// Logger 绑定组件名的分级日志
type Logger struct {
	component string
	zl        zerolog.Logger
}

func init() {
	logLevel.Store(LevelInfo)
	SetOutput(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMicro})
}

// SetOutput 设置日志输出，之后创建的 Logger 与包级别日志都写到 w
func SetOutput(w io.Writer) {
	zl := zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	logger.Store(&Logger{zl: zl})
}

// SetLevel 设置全局日志级别
func SetLevel(level int) {
	if level < LevelTrace {
		level = LevelTrace
	}
	if level > LevelError {
		level = LevelError
	}
	logLevel.Store(int32(level))
}

// GetLevel 获取全局日志级别
func GetLevel() int {
	return int(logLevel.Load())
}

// ParseLevel 把级别名（trace/debug/verbose/info/warn/error）转换为级别常量
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Component 返回带 component 字段的 Logger
func Component(name string) *Logger {
	base := logger.Load()
	return &Logger{
		component: name,
		zl:        base.zl.With().Str("component", name).Logger(),
	}
}

func (l *Logger) emit(level int, format string, v ...interface{}) {
	if l == nil || int32(level) < logLevel.Load() {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LevelTrace:
		ev = l.zl.Trace()
	case LevelDebug:
		ev = l.zl.Debug()
	case LevelVerbose:
		ev = l.zl.Debug().Bool("verbose", true)
	case LevelInfo:
		ev = l.zl.Info()
	case LevelWarning:
		ev = l.zl.Warn()
	default:
		ev = l.zl.Error()
	}
	ev.Msgf(format, v...)
}

func (l *Logger) Trace(format string, v ...interface{})   { l.emit(LevelTrace, format, v...) }
func (l *Logger) Debug(format string, v ...interface{})   { l.emit(LevelDebug, format, v...) }
func (l *Logger) Verbose(format string, v ...interface{}) { l.emit(LevelVerbose, format, v...) }
func (l *Logger) Info(format string, v ...interface{})    { l.emit(LevelInfo, format, v...) }
func (l *Logger) Warn(format string, v ...interface{})    { l.emit(LevelWarning, format, v...) }
func (l *Logger) Error(format string, v ...interface{})   { l.emit(LevelError, format, v...) }

// 包级别的日志方法

func Trace(format string, v ...interface{})   { logger.Load().emit(LevelTrace, format, v...) }
func Debug(format string, v ...interface{})   { logger.Load().emit(LevelDebug, format, v...) }
func Verbose(format string, v ...interface{}) { logger.Load().emit(LevelVerbose, format, v...) }
func Info(format string, v ...interface{})    { logger.Load().emit(LevelInfo, format, v...) }
func Warn(format string, v ...interface{})    { logger.Load().emit(LevelWarning, format, v...) }
func Error(format string, v ...interface{})   { logger.Load().emit(LevelError, format, v...) }
