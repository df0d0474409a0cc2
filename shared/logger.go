package shared

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	Dir      string
	FileName string
	MaxAge   int
	MaxSize  int
	Level    string
	AppName  string
	logger   *zap.Logger
}

func NewLogger(dir string, fileName string, maxAge int, maxSize int, level string, appName string) *Logger {
	return &Logger{
		Dir:      dir,
		FileName: fileName,
		MaxAge:   maxAge,
		MaxSize:  maxSize,
		Level:    level,
		AppName:  appName,
	}
}

func buildRotatingSyncer(dir string, fileName string, maxSize int, maxAge int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, fileName),
		MaxSize:    maxSize, // maximum size in megabytes before log file gets rotated
		MaxBackups: 7,       // maximum number of old log files to retain
		MaxAge:     maxAge,  // maximum number of days to retain old log files
		Compress:   false,
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Add new field to the logger fields (to head)
func unshift(fields []zap.Field, field zap.Field) []zap.Field {
	return append([]zap.Field{field}, fields...)
}

func (l *Logger) Init() {
	rotating := buildRotatingSyncer(l.Dir, l.FileName, l.MaxSize, l.MaxAge)
	syncer := zapcore.AddSync(rotating)

	stdoutSyncer := zapcore.AddSync(os.Stdout)
	combine := zapcore.NewMultiWriteSyncer(syncer, stdoutSyncer)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), combine, parseLevel(l.Level))
	l.logger = zap.New(core)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.logger.Info(msg, unshift(fields, zap.String("service", l.AppName))...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.logger.Error(msg, unshift(fields, zap.String("service", l.AppName))...)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.logger.Debug(msg, unshift(fields, zap.String("service", l.AppName))...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.logger.Warn(msg, unshift(fields, zap.String("service", l.AppName))...)
}

func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.logger.Fatal(msg, unshift(fields, zap.String("service", l.AppName))...)
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{AppName: "test", logger: zap.NewNop()}
}
