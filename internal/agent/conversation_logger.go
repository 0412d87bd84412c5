package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/ashureev/kundali-rag/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogQueueSize = 256

// ConversationLogger records chat transcripts.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogEvent is one NDJSON transcript line.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// FileConversationLogger writes one NDJSON file per session and, optionally,
// a rotated global file. Writes happen on a single goroutine; events are
// dropped when the queue is full.
type FileConversationLogger struct {
	dir     string
	global  *lumberjack.Logger
	queue   chan ConversationLogEvent
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewConversationLogger creates a logger from cfg. A disabled config yields
// a logger that discards everything.
func NewConversationLogger(cfg config.ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("conversation log dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultLogQueueSize
	}

	l := &FileConversationLogger{
		dir:    cfg.Dir,
		queue:  make(chan ConversationLogEvent, queueSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "conversation_log"),
	}

	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		l.global = &lumberjack.Logger{
			Filename:   cfg.GlobalPath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     30,
			Compress:   true,
		}
	}

	go l.run()
	return l, nil
}

// Log enqueues event without blocking.
func (l *FileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.dropped.Add(1)
		l.logger.Warn("Conversation log queue full, dropping event",
			"session_id", event.SessionID,
			"event_type", event.EventType)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (l *FileConversationLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close drains the queue and closes the global file.
func (l *FileConversationLogger) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()

		<-l.done
		if l.global != nil {
			err = l.global.Close()
		}
	})
	return err
}

func (l *FileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.appendSession(event.SessionID, line); err != nil {
			l.logger.Warn("failed to write session conversation log", "session_id", event.SessionID, "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *FileConversationLogger) appendSession(sessionID string, line []byte) error {
	path := filepath.Join(l.dir, safeFileName(sessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeFileName(id string) string {
	id = unsafeFileChars.ReplaceAllString(strings.TrimSpace(id), "_")
	id = strings.TrimLeft(id, ".")
	if id == "" {
		return "unknown"
	}
	return id
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

// cleanForReadability strips terminal escapes and control characters,
// keeping newlines and tabs.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
