package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/resonancehq/resonance/internal/providers"
)

// MainSession is the reserved session that sentinel-triggered turns target.
// It cannot be deleted.
const MainSession = "resonance_main"

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrReservedSession = errors.New("session is reserved")
)

// Role is the speaker of a transcript entry. The set is closed; the
// sanitizer and context builder switch over it.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one stored transcript entry. ID and Timestamp never reach the
// LLM wire; BuildWindow strips them.
type Message struct {
	ID         string               `json:"id,omitempty"`
	Role       Role                 `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
	Timestamp  time.Time            `json:"timestamp,omitempty"`
}

// SessionInfo is a lightweight session descriptor for listing.
type SessionInfo struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"last_modified"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// Store persists per-session transcripts as sessions/<id>.log (a JSON
// array, rewritten whole on each append) plus a sessions/<id>.summary
// sidecar. Typical logs stay well under 10 MB, so whole-file replacement
// keeps every write atomic without a journal.
type Store struct {
	mu     sync.Mutex
	dir    string
	lastID map[string]int64
}

// NewStore opens (creating if needed) the transcript directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir, lastID: make(map[string]int64)}, nil
}

func (s *Store) logPath(session string) string {
	return filepath.Join(s.dir, session+".log")
}

func (s *Store) summaryPath(session string) string {
	return filepath.Join(s.dir, session+".summary")
}

func validSession(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, `/\`) {
		return false
	}
	return filepath.IsLocal(id)
}

// Append assigns a monotonic id and timestamp to msg and persists it.
// Returns the stored message.
func (s *Store) Append(session string, msg Message) (Message, error) {
	if !validSession(session) {
		return Message{}, fmt.Errorf("invalid session id %q", session)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.readLog(session)

	msg.ID = s.nextID(session, history)
	msg.Timestamp = time.Now()
	history = append(history, msg)

	if err := s.writeLog(session, history); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// nextID allocates ids that stay strictly increasing per session, even for
// several appends inside one millisecond and across restarts.
func (s *Store) nextID(session string, history []Message) string {
	last := s.lastID[session]
	if last == 0 {
		for i := len(history) - 1; i >= 0; i-- {
			if v, err := strconv.ParseInt(history[i].ID, 10, 64); err == nil {
				last = v
				break
			}
		}
	}
	id := time.Now().UnixMilli()
	if id <= last {
		id = last + 1
	}
	s.lastID[session] = id
	return strconv.FormatInt(id, 10)
}

// Create materializes an empty log so the session shows up in listings
// before its first message. Existing sessions are left untouched.
func (s *Store) Create(session string) error {
	if !validSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.logPath(session)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return s.writeLog(session, []Message{})
}

// Read returns the full ordered transcript. A missing log is an empty
// transcript, not an error.
func (s *Store) Read(session string) ([]Message, error) {
	if !validSession(session) {
		return nil, fmt.Errorf("invalid session id %q", session)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLog(session), nil
}

// Replace overwrites the whole transcript. Used by message deletion.
func (s *Store) Replace(session string, msgs []Message) error {
	if !validSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLog(session, msgs)
}

// DeleteMessage removes the message at index. Context repair on the next
// turn covers any tool chain this breaks.
func (s *Store) DeleteMessage(session string, index int) error {
	if !validSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.readLog(session)
	if index < 0 || index >= len(history) {
		return fmt.Errorf("message index %d out of range", index)
	}
	history = append(history[:index], history[index+1:]...)
	return s.writeLog(session, history)
}

// LoadSummary returns the stored summary blob, empty when absent.
func (s *Store) LoadSummary(session string) string {
	if !validSession(session) {
		return ""
	}
	data, err := os.ReadFile(s.summaryPath(session))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveSummary overwrites the summary blob.
func (s *Store) SaveSummary(session, text string) error {
	if !validSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	return writeFileAtomic(s.summaryPath(session), []byte(text))
}

// List returns all sessions sorted by last modification, newest first.
func (s *Store) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var sessions []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".log")
		info, err := e.Info()
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			continue
		}

		sessions = append(sessions, SessionInfo{
			ID:           id,
			LastModified: info.ModTime(),
			MessageCount: len(msgs),
			Preview:      preview(msgs),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastModified.After(sessions[j].LastModified)
	})
	return sessions, nil
}

// preview renders the last message as a short one-liner: its content
// clipped to 50 display cells, or the tool-call name when content is empty.
func preview(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	last := msgs[len(msgs)-1]
	p := runewidth.Truncate(last.Content, 50, "")
	if p == "" && len(last.ToolCalls) > 0 {
		p = fmt.Sprintf("[Tool Call: %s]", last.ToolCalls[0].Name)
	}
	return p
}

// Rename moves a session's log and summary to a new id.
func (s *Store) Rename(session, newID string) error {
	if !validSession(session) || !validSession(newID) {
		return fmt.Errorf("invalid session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.logPath(newID)); err == nil {
		return ErrSessionExists
	}
	if _, err := os.Stat(s.logPath(session)); err != nil {
		if os.IsNotExist(err) {
			return ErrSessionNotFound
		}
		return err
	}

	if err := os.Rename(s.logPath(session), s.logPath(newID)); err != nil {
		return err
	}
	if _, err := os.Stat(s.summaryPath(session)); err == nil {
		if err := os.Rename(s.summaryPath(session), s.summaryPath(newID)); err != nil {
			return err
		}
	}
	delete(s.lastID, session)
	return nil
}

// Delete removes a session's log and summary. The reserved main session
// is refused.
func (s *Store) Delete(session string) error {
	if !validSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	if session == MainSession {
		return ErrReservedSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	if err := os.Remove(s.logPath(session)); err == nil {
		deleted = true
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.summaryPath(session)); err == nil {
		deleted = true
	} else if !os.IsNotExist(err) {
		return err
	}
	delete(s.lastID, session)

	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// Clear empties a session's transcript and drops its summary, keeping the
// session itself listable.
func (s *Store) Clear(session string) error {
	if !validSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLog(session, []Message{}); err != nil {
		return err
	}
	if err := os.Remove(s.summaryPath(session)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) readLog(session string) []Message {
	data, err := os.ReadFile(s.logPath(session))
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

func (s *Store) writeLog(session string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.logPath(session), data)
}

// writeFileAtomic replaces path via temp file + fsync + rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".transcript-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
