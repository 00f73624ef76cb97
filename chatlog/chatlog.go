package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/galechat/galechat/globals"
)

const (
	// DefaultDateFormat names the per-day log files.
	DefaultDateFormat = "2006-01-02"
	// DefaultTimeFormat prefixes each logged line.
	DefaultTimeFormat = "15:04:05"
)

// Logger appends chat traffic to date-stamped files under one directory,
// rolling to a new file at midnight. Each active file is guarded with an
// advisory file lock so external tools do not rotate it away mid-write.
// Logger implements the chat observer interface and is meant to be
// subscribed on the registry.
type Logger struct {
	dir        string
	dateFormat string
	timeFormat string

	mu   sync.Mutex
	day  string
	file *os.File
	lock *flock.Flock
}

// New creates the log directory and a logger writing into it. Empty formats
// fall back to the defaults.
func New(dir, dateFormat, timeFormat string) (*Logger, error) {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create chat log directory %s", dir)
	}
	return &Logger{dir: dir, dateFormat: dateFormat, timeFormat: timeFormat}, nil
}

// Log appends one line for the channel. Failures are logged and swallowed,
// chat logging must never take the chat down.
func (l *Logger) Log(channel, line string) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotate(now); err != nil {
		globals.AppLogger.Error("could not open chat log", "error", err)
		return
	}
	if _, err := fmt.Fprintf(l.file, "%s [%s] %s\n", now.Format(l.timeFormat), channel, line); err != nil {
		globals.AppLogger.Error("could not write chat log", "error", err)
	}
}

// OnMessageBroadcast logs a broadcast line.
func (l *Logger) OnMessageBroadcast(channel, sender, text string) {
	l.Log(channel, text)
}

// OnChatterJoined logs a join marker.
func (l *Logger) OnChatterJoined(chatter, channel string) {
	l.Log(channel, "*** "+chatter+" joined")
}

// OnChatterLeft logs a leave marker.
func (l *Logger) OnChatterLeft(chatter, channel string) {
	l.Log(channel, "*** "+chatter+" left")
}

// Close releases the current file and its lock.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release()
}

// rotate makes sure the file for the day of now is open, closing the
// previous day's file first. Caller holds l.mu.
func (l *Logger) rotate(now time.Time) error {
	day := now.Format(l.dateFormat)
	if l.file != nil && day == l.day {
		return nil
	}
	if err := l.release(); err != nil {
		globals.AppLogger.Debug("could not release previous chat log", "error", err)
	}
	path := filepath.Join(l.dir, "chat-"+day+".log")
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "could not lock %s", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return errors.Wrapf(err, "could not open %s", path)
	}
	l.day = day
	l.file = file
	l.lock = lock
	return nil
}

// release closes the open file and lock, if any. Caller holds l.mu.
func (l *Logger) release() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	if unlockErr := l.lock.Unlock(); err == nil {
		err = unlockErr
	}
	l.file = nil
	l.lock = nil
	l.day = ""
	return err
}
