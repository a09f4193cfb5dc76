package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "BACSCAN_LOG_LEVEL"

// DebugEnvVar enables debug logging when set to any value. It is the
// switch BACnet command line tools traditionally honour.
const DebugEnvVar = "BACNET_DEBUG"

// maxDumpBytes caps hex dumps in log fields
const maxDumpBytes = 256

// Initialize creates a new logger with the specified level.
// If level is empty, BACSCAN_LOG_LEVEL is consulted, then BACNET_DEBUG.
// If none is set, logging is disabled (silent mode).
//
// Output always goes to stderr: stdout carries the device table.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" && os.Getenv(DebugEnvVar) != "" {
		level = "debug"
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built

	return nil
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Silent until initialized so library use never writes to the terminal
		logger = zap.NewNop()
	}
	return logger
}

// DebugEnabled reports whether debug entries would be written
func DebugEnabled() bool {
	return GetLogger().Core().Enabled(zapcore.DebugLevel)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogSend logs an outbound request
func LogSend(service string, dest string, attempt int, pdu []byte) {
	fields := []zap.Field{
		zap.String("service", service),
		zap.String("dest", dest),
		zap.Int("attempt", attempt),
		zap.Int("length", len(pdu)),
	}
	if DebugEnabled() {
		fields = append(fields, zap.String("hex", hexDump(pdu)))
	}
	Info("Request sent", fields...)
}

// LogPeer logs an identity reply and what the registry did with it
func LogPeer(deviceID uint32, source string, maxAPDU uint32, vendorID uint16, outcome string) {
	Debug("Received I-Am",
		zap.Uint32("device_id", deviceID),
		zap.String("mac", source),
		zap.Uint32("max_apdu", maxAPDU),
		zap.Uint16("vendor_id", vendorID),
		zap.String("outcome", outcome),
	)
}

// LogNode logs a hub connection event for one node
func LogNode(remoteAddr string, vmac string, event string) {
	Info("Node event",
		zap.String("remote_addr", remoteAddr),
		zap.String("vmac", vmac),
		zap.String("event", event),
	)
}

// LogRawBytes logs raw bytes (useful for debugging protocol issues)
func LogRawBytes(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
