package transcript

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/resonancehq/resonance/internal/providers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)

	var prev int64
	for i := 0; i < 20; i++ {
		stored, err := s.Append("s1", Message{Role: "user", Content: "m" + strconv.Itoa(i)})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		id, err := strconv.ParseInt(stored.ID, 10, 64)
		if err != nil {
			t.Fatalf("non-numeric id %q", stored.ID)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
		if stored.Timestamp.IsZero() {
			t.Fatal("timestamp not assigned")
		}
	}

	msgs, err := s.Read("s1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("read %d messages, want 20", len(msgs))
	}
}

func TestMonotonicIDsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	first, err := s1.Append("s", Message{Role: "user", Content: "a"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second, err := s2.Append("s", Message{Role: "user", Content: "b"})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}

	a, _ := strconv.ParseInt(first.ID, 10, 64)
	b, _ := strconv.ParseInt(second.ID, 10, 64)
	if b <= a {
		t.Errorf("id %d after reopen not greater than %d", b, a)
	}
}

func TestListPreviewAndOrder(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Append("older", Message{Role: "user", Content: "first session text"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := s.Append("newer", Message{
		Role: "assistant",
		ToolCalls: []providers.ToolCall{
			{ID: "c1", Name: "execute_shell_command", Arguments: map[string]interface{}{}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(infos))
	}
	if infos[0].ID != "newer" {
		t.Errorf("order = [%s, %s], want newest first", infos[0].ID, infos[1].ID)
	}
	if infos[0].Preview != "[Tool Call: execute_shell_command]" {
		t.Errorf("tool-call preview = %q", infos[0].Preview)
	}
	if infos[1].Preview != "first session text" {
		t.Errorf("content preview = %q", infos[1].Preview)
	}
	if infos[1].MessageCount != 1 {
		t.Errorf("message count = %d", infos[1].MessageCount)
	}
}

func TestPreviewClipsWideRunes(t *testing.T) {
	s := newTestStore(t)
	long := "你好世界你好世界你好世界你好世界你好世界你好世界你好世界你好世界" // 32 CJK runes = 64 cells
	if _, err := s.Append("cjk", Message{Role: "user", Content: long}); err != nil {
		t.Fatal(err)
	}
	infos, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	// 50 display cells = 25 double-width runes.
	if got := len([]rune(infos[0].Preview)); got != 25 {
		t.Errorf("preview runes = %d, want 25", got)
	}
}

func TestRename(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Append("a", Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSummary("a", "the summary"); err != nil {
		t.Fatal(err)
	}

	if err := s.Rename("a", "b"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if msgs, _ := s.Read("b"); len(msgs) != 1 {
		t.Error("log did not move")
	}
	if s.LoadSummary("b") != "the summary" {
		t.Error("summary did not move")
	}
	if msgs, _ := s.Read("a"); len(msgs) != 0 {
		t.Error("old log still present")
	}

	// Renaming onto an existing session must fail.
	if _, err := s.Append("c", Message{Role: "user", Content: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename("c", "b"); !errors.Is(err, ErrSessionExists) {
		t.Errorf("rename onto taken id: err = %v, want ErrSessionExists", err)
	}

	if err := s.Rename("ghost", "d"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("rename missing: err = %v, want ErrSessionNotFound", err)
	}
}

func TestDeleteReservedSessionRefused(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Append(MainSession, Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(MainSession); !errors.Is(err, ErrReservedSession) {
		t.Errorf("err = %v, want ErrReservedSession", err)
	}
	if msgs, _ := s.Read(MainSession); len(msgs) != 1 {
		t.Error("reserved session was deleted")
	}
}

func TestDeleteRemovesLogAndSummary(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Append("gone", Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSummary("gone", "sum"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.LoadSummary("gone") != "" {
		t.Error("summary survived delete")
	}
	infos, _ := s.List()
	if len(infos) != 0 {
		t.Errorf("session still listed: %v", infos)
	}

	if err := s.Delete("gone"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("double delete: err = %v, want ErrSessionNotFound", err)
	}
}

func TestClearKeepsSessionListable(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Append("keep", Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSummary("keep", "sum"); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear("keep"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if msgs, _ := s.Read("keep"); len(msgs) != 0 {
		t.Error("messages survived clear")
	}
	if s.LoadSummary("keep") != "" {
		t.Error("summary survived clear")
	}
	infos, _ := s.List()
	if len(infos) != 1 || infos[0].ID != "keep" {
		t.Errorf("cleared session not listed: %v", infos)
	}
}

func TestCreateMaterializesEmptySession(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("fresh"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	infos, _ := s.List()
	if len(infos) != 1 || infos[0].ID != "fresh" || infos[0].MessageCount != 0 {
		t.Errorf("created session not listed empty: %v", infos)
	}

	if _, err := s.Append("fresh", Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Create("fresh"); err != nil {
		t.Fatalf("Create existing: %v", err)
	}
	if msgs, _ := s.Read("fresh"); len(msgs) != 1 {
		t.Error("Create truncated an existing session")
	}

	if err := s.Create("../escape"); err == nil {
		t.Error("Create accepted an invalid session id")
	}
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	for _, c := range []string{"a", "b", "c"} {
		if _, err := s.Append("s", Message{Role: "user", Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteMessage("s", 1); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	msgs, _ := s.Read("s")
	if len(msgs) != 2 || msgs[0].Content != "a" || msgs[1].Content != "c" {
		t.Errorf("after delete: %+v", msgs)
	}

	if err := s.DeleteMessage("s", 5); err == nil {
		t.Error("expected range error")
	}
}

func TestInvalidSessionIDs(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"", "..", "a/b", `a\b`, "../etc"} {
		if _, err := s.Append(id, Message{Role: "user", Content: "x"}); err == nil {
			t.Errorf("Append accepted invalid id %q", id)
		}
	}
}
