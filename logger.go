package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// Logger constants
const (
	// Environment variable to enable/disable debug logging
	LogDebugEnvVar = "LOG_DEBUG"
	// Environment variable to enable/disable colored output
	LogColorEnvVar = "LOG_COLOR"
	// Environment variable for log directory
	LogDirEnvVar = "LOG_DIR"
	// Default log directory
	DefaultLogDir = "logs"
)

var (
	// Whether debug logging is enabled
	debugLoggingEnabled bool
	// Whether colored logging is enabled
	coloredLoggingEnabled bool
	// Log file
	logFile *os.File
	// Logger instance
	logger *log.Logger
)

// InitLogger initializes the logger with the specified configuration
func InitLogger() {
	debugLoggingEnabled = strings.ToLower(os.Getenv(LogDebugEnvVar)) == "true"

	// Colored logging defaults to on
	coloredLoggingEnabled = os.Getenv(LogColorEnvVar) != "false"

	logDir := os.Getenv(LogDirEnvVar)
	if logDir == "" {
		logDir = DefaultLogDir
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Failed to create log directory: %v", err)
	}

	// Create log file with current date in the filename
	currentTime := time.Now().Format("2006-01-02")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("steam-farm-%s.log", currentTime))

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Failed to open log file: %v", err)
	} else {
		// Write to both console and file
		multiWriter := io.MultiWriter(os.Stdout, logFile)
		logger = log.New(multiWriter, "", log.LstdFlags)

		log.SetOutput(multiWriter)
		log.SetFlags(log.LstdFlags)
	}

	LogInfo("Logging initialized. Logs will be saved to: %s", logFilePath)
}

// CloseLogger closes the log file
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
	}
}

// LogDebug logs a debug message; suppressed unless LOG_DEBUG=true
func LogDebug(format string, args ...interface{}) {
	if !debugLoggingEnabled {
		return
	}
	logWithLevel("DEBUG", ColorCyan, format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logWithLevel("INFO", ColorGreen, format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	logWithLevel("WARNING", ColorYellow, format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logWithLevel("ERROR", ColorRed, format, args...)
}

// LogBotInfo logs an info message prefixed with the bot name
func LogBotInfo(botName, format string, args ...interface{}) {
	LogInfo("Bot %s: %s", botName, fmt.Sprintf(format, args...))
}

// LogBotWarning logs a warning message prefixed with the bot name
func LogBotWarning(botName, format string, args ...interface{}) {
	LogWarning("Bot %s: %s", botName, fmt.Sprintf(format, args...))
}

// LogBotError logs an error message prefixed with the bot name
func LogBotError(botName, format string, args ...interface{}) {
	LogError("Bot %s: %s", botName, fmt.Sprintf(format, args...))
}

// logWithLevel logs a message with the specified level
func logWithLevel(level string, color string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	levelStr := level
	coloredLevelStr := level
	if coloredLoggingEnabled {
		coloredLevelStr = color + level + ColorReset
	}

	if logger != nil {
		// File logging goes without colors
		logger.Printf("[%s] %s", levelStr, message)
	} else {
		// Fallback to standard log if the logger is not initialized
		log.Printf("[%s] %s", coloredLevelStr, message)
	}
}
