// internal/logger/logger.go
package logger

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger configuration
type Config struct {
	LogsDirectory string
	LogFileFormat string
	TimeZone      string
	Debug         bool
}

var (
	initialized int32 // 0 = not initialized, 1 = initialized
	base        *zap.Logger
	wrapped     *zap.Logger // skips the LogX helpers when reporting the caller
	logFile     *os.File
	timeZone    *time.Location
	logFilePath string
	mu          sync.Mutex // protect against concurrent initialization
)

// SetupLogger initializes the logger with file and console output.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone == "" {
		config.TimeZone = "Local"
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return fmt.Errorf("failed to load time zone '%s': %w", config.TimeZone, err)
	}
	timeZone = loc

	if err := os.MkdirAll(config.LogsDirectory, 0775); err != nil {
		return fmt.Errorf("failed to create logs directory '%s': %w", config.LogsDirectory, err)
	}

	logFileName := fmt.Sprintf(config.LogFileFormat, time.Now().In(loc).Format("2006-01-02"))

	// Respect whether LogFileFormat is an absolute path or not
	if filepath.IsAbs(logFileName) {
		logFilePath = logFileName
	} else {
		logFilePath = filepath.Join(config.LogsDirectory, logFileName)
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilePath, err)
	}
	logFile = f

	level := zapcore.InfoLevel
	if config.Debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(timeZone).Format("2006-01-02 15:04:05 MST"))
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level),
	)

	base = zap.New(core, zap.AddCaller())
	wrapped = base.WithOptions(zap.AddCallerSkip(2))

	atomic.StoreInt32(&initialized, 1)
	LogInfo("Logger initialized, writing to %s", logFilePath)
	return nil
}

// Sync flushes buffered entries and closes the log file.
func Sync() {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 0 {
		return
	}
	_ = base.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	atomic.StoreInt32(&initialized, 0)
}

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

// L returns the structured logger. Before SetupLogger it returns zap's global
// logger, which is a no-op unless replaced.
func L() *zap.Logger {
	if !IsInitialized() {
		return zap.L()
	}
	return base
}

func LogMessage(level zapcore.Level, message string, v ...interface{}) {
	l := wrapped
	if !IsInitialized() {
		l = zap.L()
	}
	if ce := l.Check(level, fmt.Sprintf(message, v...)); ce != nil {
		ce.Write()
	}
}

func LogDebug(message string, v ...interface{}) { LogMessage(zapcore.DebugLevel, message, v...) }
func LogInfo(message string, v ...interface{})  { LogMessage(zapcore.InfoLevel, message, v...) }
func LogWarn(message string, v ...interface{})  { LogMessage(zapcore.WarnLevel, message, v...) }
func LogError(message string, v ...interface{}) { LogMessage(zapcore.ErrorLevel, message, v...) }
func LogFatal(message string, v ...interface{}) {
	if !IsInitialized() {
		fmt.Fprintf(os.Stderr, "[FATAL] %s\n", fmt.Sprintf(message, v...))
		os.Exit(1)
	}
	LogMessage(zapcore.FatalLevel, message, v...)
}

func LogHTTPError(r *http.Request, status int, err error) {
	clientIP := GetClientIP(r)
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, clientIP, err)
}

func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
