// Package logger provides centralized logging for the relay.
// File: logger/logger.go
package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ------------------- global loggers -------------------

// four logger levels accessible throughout the application
var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
	Debug *log.Logger
)

const logFlags = log.Ldate | log.Ltime | log.Lshortfile

// logFile is the file opened by the last InitLogger call, if any.
var logFile *os.File

// ------------------- logger initialization -------------------

// InitLogger (re)initializes the logging system. It:
// - Ensures logDir exists.
// - Creates a timestamped log file in logDir.
// - Writes logs to both the file and stdout.
//
// An empty logDir keeps the loggers on stdout only.
func InitLogger(logDir string) error {
	if logDir == "" {
		configure(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(logDir, 0700); err != nil {
		return err
	}

	logFileName := filepath.Join(logDir, time.Now().Format("2006-01-02_15-04-05")+".log")
	file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec
	if err != nil {
		return err
	}

	Close()
	logFile = file
	configure(io.MultiWriter(os.Stdout, file))
	return nil
}

// SetLogLevel adjusts the Debug logger's output depending on environment.
// Production discards debug output; every other environment keeps it.
func SetLogLevel(env string) {
	if env == "production" {
		Debug.SetOutput(io.Discard)
	}
}

// SetOutput redirects every level to w. Tests use it to capture or silence logs.
func SetOutput(w io.Writer) {
	configure(w)
}

// Close releases the current log file, if one is open.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func configure(w io.Writer) {
	Info = log.New(w, "INFO: ", logFlags)
	Warn = log.New(w, "WARN: ", logFlags)
	Error = log.New(w, "ERROR: ", logFlags)
	Debug = log.New(w, "DEBUG: ", logFlags)
}

// init wires stdout loggers so packages can log before main calls InitLogger.
func init() {
	configure(os.Stdout)
}
