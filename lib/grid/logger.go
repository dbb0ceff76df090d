// Package grid provides logging utilities for the engine
package grid

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements logger.ILogger)
// --------------------------------------------------------------------------

// dGridLogger implements the ILogger interface with custom formatting
type dGridLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *dGridLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *dGridLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *dGridLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *dGridLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *dGridLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *dGridLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *dGridLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &dGridLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// lookupLogLevel resolves a level name to logger.LogLevel. Config validation
// uses the same table, so a level that passed Validate always resolves.
func lookupLogLevel(level string) (logger.LogLevel, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, true
	case "info":
		return logger.INFO, true
	case "warning", "warn":
		return logger.WARNING, true
	case "error":
		return logger.ERROR, true
	default:
		return 0, false
	}
}

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) logger.LogLevel {
	lvl, ok := lookupLogLevel(level)
	if !ok {
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
	return lvl
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// engineLoggers lists the logger names the engine packages obtain via
// logger.GetLogger.
var engineLoggers = []string{"grid", "cache", "entry", "swap", "bench"}

// InitLoggers initializes all loggers with the custom format
func InitLoggers(config Config) {
	// Set as the global logger factory
	logger.SetLoggerFactory(CreateLogger)

	lvl := parseLogLevel(config.LogLevel)
	for _, name := range engineLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
}
