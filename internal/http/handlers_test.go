package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/memory"
	"github.com/resonancehq/resonance/internal/sentinel"
	"github.com/resonancehq/resonance/internal/skills"
	"github.com/resonancehq/resonance/internal/transcript"
)

func newMux(h interface{ RegisterRoutes(*http.ServeMux) }) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestSessionLifecycle(t *testing.T) {
	store, err := transcript.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewSessionsHandler(store, nil))

	rec := doJSON(t, mux, "POST", "/api/sessions", map[string]string{"session_id": "research"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body)
	}
	if m := decodeMap(t, rec); m["status"] != "created" || m["id"] != "research" {
		t.Errorf("create response = %v", m)
	}

	rec = doJSON(t, mux, "GET", "/api/sessions", nil)
	var infos []transcript.SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "research" {
		t.Fatalf("list = %v", infos)
	}

	rec = doJSON(t, mux, "PATCH", "/api/sessions/research", map[string]string{"new_name": "archive"})
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["new_name"] != "archive" {
		t.Errorf("rename: status %d, body %v", rec.Code, m)
	}

	rec = doJSON(t, mux, "PATCH", "/api/sessions/missing", map[string]string{"new_name": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("rename missing: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, mux, "DELETE", "/api/sessions/"+transcript.MainSession, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("delete main: status %d, want 403", rec.Code)
	}
	if m := decodeMap(t, rec); m["detail"] != "Cannot delete main process session." {
		t.Errorf("delete main detail = %v", m["detail"])
	}

	rec = doJSON(t, mux, "DELETE", "/api/sessions/archive", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, mux, "DELETE", "/api/sessions/archive", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", rec.Code)
	}
}

func TestHistoryAndClear(t *testing.T) {
	store, err := transcript.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("notes", transcript.Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("notes", transcript.Message{Role: "assistant", Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewSessionsHandler(store, nil))

	rec := doJSON(t, mux, "GET", "/api/history?session_id=notes", nil)
	var msgs []transcript.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" {
		t.Fatalf("history = %v", msgs)
	}

	// The default session has no log yet: still a JSON array, never null.
	rec = doJSON(t, mux, "GET", "/api/history", nil)
	if got := bytes.TrimSpace(rec.Body.Bytes()); len(got) == 0 || got[0] != '[' {
		t.Errorf("empty history body = %q, want JSON array", got)
	}

	rec = doJSON(t, mux, "DELETE", "/api/sessions/notes/messages", nil)
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["status"] != "cleared" {
		t.Errorf("clear: status %d, body %v", rec.Code, m)
	}
	if msgs, _ := store.Read("notes"); len(msgs) != 0 {
		t.Errorf("messages survived clear: %v", msgs)
	}
}

func TestConfigProfiles(t *testing.T) {
	cfg, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewConfigHandler(cfg))

	rec := doJSON(t, mux, "POST", "/api/config/profiles/save", map[string]interface{}{
		"profile_id": "gpt", "api_key": "sk-secret", "model": "gpt-4o",
	})
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["profile_id"] != "gpt" {
		t.Fatalf("save: status %d, body %v", rec.Code, m)
	}
	if got := cfg.Snapshot().Profiles["gpt"].Temperature; got != 0.7 {
		t.Errorf("default temperature = %v, want 0.7", got)
	}

	rec = doJSON(t, mux, "GET", "/api/config", nil)
	m := decodeMap(t, rec)
	profiles, ok := m["profiles"].(map[string]interface{})
	if !ok {
		t.Fatalf("profiles missing: %v", m)
	}
	gpt := profiles["gpt"].(map[string]interface{})
	if gpt["api_key"] != "***" {
		t.Errorf("api_key not masked: %v", gpt["api_key"])
	}

	// A masked key round-trips back to the stored secret.
	rec = doJSON(t, mux, "POST", "/api/config/profiles/save", map[string]interface{}{
		"profile_id": "gpt", "api_key": "***", "model": "gpt-4o-mini",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resave: status %d", rec.Code)
	}
	if p := cfg.Snapshot().Profiles["gpt"]; p.APIKey != "sk-secret" || p.Model != "gpt-4o-mini" {
		t.Errorf("round-trip profile = %+v", p)
	}

	rec = doJSON(t, mux, "POST", "/api/config/active", map[string]string{"profile_id": "gpt"})
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["active_profile"] != "gpt" {
		t.Errorf("set active: status %d, body %v", rec.Code, m)
	}
	rec = doJSON(t, mux, "POST", "/api/config/active", map[string]string{"profile_id": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("set missing active: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, mux, "DELETE", "/api/config/profiles/gpt", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete active profile: status %d, want 400", rec.Code)
	}
	if m := decodeMap(t, rec); m["detail"] != "Cannot delete active profile. Switch first." {
		t.Errorf("delete active detail = %v", m["detail"])
	}

	doJSON(t, mux, "POST", "/api/config/profiles/save", map[string]interface{}{
		"profile_id": "spare", "api_key": "sk2", "model": "o3",
	})
	rec = doJSON(t, mux, "DELETE", "/api/config/profiles/spare", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete spare: status %d", rec.Code)
	}
	rec = doJSON(t, mux, "DELETE", "/api/config/profiles/spare", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete gone: status %d, want 404", rec.Code)
	}
}

func TestRAGStrategyConfig(t *testing.T) {
	cfg, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewConfigHandler(cfg))

	rec := doJSON(t, mux, "GET", "/api/config/rag", nil)
	if m := decodeMap(t, rec); m["strategy"] != memory.StrategyHybridLexical {
		t.Errorf("default strategy = %v", m["strategy"])
	}

	rec = doJSON(t, mux, "POST", "/api/config/rag", map[string]string{"strategy": "semantic"})
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["strategy"] != "semantic" {
		t.Errorf("set: status %d, body %v", rec.Code, m)
	}
	rec = doJSON(t, mux, "GET", "/api/config/rag", nil)
	if m := decodeMap(t, rec); m["strategy"] != "semantic" {
		t.Errorf("get after set = %v", m["strategy"])
	}

	rec = doJSON(t, mux, "POST", "/api/config/rag", map[string]string{"strategy": "psychic"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid strategy: status %d, want 400", rec.Code)
	}
}

func TestSkillEndpoints(t *testing.T) {
	reg, err := skills.NewRegistry(filepath.Join(t.TempDir(), "SKILLS"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewSkillsHandler(reg, cfg))

	rec := doJSON(t, mux, "GET", "/api/skills/list", nil)
	m := decodeMap(t, rec)
	if legacy, ok := m["legacy"].(map[string]interface{}); !ok || len(legacy) != 0 {
		t.Errorf("legacy = %v, want empty object", m["legacy"])
	}

	dir := filepath.Join(reg.Root(), "weather")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := "---\nname: weather\ndescription: Fetch forecasts.\n---\n\nBody.\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reg.Scan(); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, mux, "GET", "/api/skills/list", nil)
	m = decodeMap(t, rec)
	imported := m["imported"].(map[string]interface{})
	if _, ok := imported["weather"]; !ok {
		t.Errorf("imported = %v, want weather", imported)
	}

	rec = doJSON(t, mux, "POST", "/api/skills/learn", map[string]string{"url_or_path": "/no/such/path"})
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["result"] == "" {
		t.Errorf("learn bad path: status %d, body %v", rec.Code, m)
	}

	rec = doJSON(t, mux, "DELETE", "/api/skills/weather", nil)
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["skill"] != "weather" {
		t.Errorf("delete: status %d, body %v", rec.Code, m)
	}
	rec = doJSON(t, mux, "DELETE", "/api/skills/weather", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete gone: status %d, want 404", rec.Code)
	}
}

func TestSentinelEndpoints(t *testing.T) {
	hot := sentinel.NewChannelListener()
	engine := sentinel.New(filepath.Join(t.TempDir(), "sentinels.json"), hot)
	id, err := engine.AddTime(5, "minutes", "check disk")
	if err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewSentinelsHandler(engine, hot))

	rec := doJSON(t, mux, "GET", "/api/sentinels", nil)
	var listed map[string]map[string]sentinel.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if _, ok := listed[sentinel.KindTime][id]; !ok {
		t.Fatalf("list missing %s: %v", id, listed)
	}

	rec = doJSON(t, mux, "DELETE", "/api/sentinels/time/time_404", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: status %d, want 404", rec.Code)
	}
	if m := decodeMap(t, rec); m["detail"] != "Sentinel not found" {
		t.Errorf("detail = %v", m["detail"])
	}

	rec = doJSON(t, mux, "DELETE", "/api/sentinels/time/"+id, nil)
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["status"] != "deleted" {
		t.Errorf("delete: status %d, body %v", rec.Code, m)
	}

	rec = doJSON(t, mux, "POST", "/api/sentinels/hotkey/press", map[string]string{"combo": "<ctrl>+<alt>+k"})
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["status"] != "pressed" {
		t.Errorf("press: status %d, body %v", rec.Code, m)
	}
	rec = doJSON(t, mux, "POST", "/api/sentinels/hotkey/press", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("press empty: status %d, want 400", rec.Code)
	}
}

type flatEmbedder struct{}

func (flatEmbedder) Dimension() int { return 8 }

func (flatEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r%13) + 1
	}
	return vec, nil
}

func (flatEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, tx := range texts {
		v, err := flatEmbedder{}.Embed(ctx, tx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestMemoryEndpoints(t *testing.T) {
	st, err := memory.Open(t.TempDir(), flatEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	id, err := st.Add(context.Background(), "User prefers dark mode.", map[string]string{"type": "conversation_insight"})
	if err != nil {
		t.Fatal(err)
	}
	mux := newMux(NewMemoryHandler(st))

	rec := doJSON(t, mux, "GET", "/api/memory", nil)
	var rows []memory.ExportRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != id {
		t.Fatalf("rows = %v", rows)
	}

	rec = doJSON(t, mux, "DELETE", "/api/memory/no-such-id", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("delete missing: status %d, want 500", rec.Code)
	}
	if m := decodeMap(t, rec); m["detail"] != "Failed to delete memory" {
		t.Errorf("detail = %v", m["detail"])
	}

	rec = doJSON(t, mux, "DELETE", "/api/memory/"+id, nil)
	if m := decodeMap(t, rec); rec.Code != http.StatusOK || m["id"] != id {
		t.Errorf("delete: status %d, body %v", rec.Code, m)
	}

	rec = doJSON(t, mux, "GET", "/api/memory", nil)
	if got := bytes.TrimSpace(rec.Body.Bytes()); len(got) == 0 || got[0] != '[' {
		t.Errorf("empty memory body = %q, want JSON array", got)
	}
}

func TestSystemEndpoints(t *testing.T) {
	mux := newMux(NewSystemHandler())

	for _, target := range []string{"/api/system/metrics", "/api/status"} {
		rec := doJSON(t, mux, "GET", target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", target, rec.Code)
		}
		m := decodeMap(t, rec)
		for _, key := range []string{"timestamp", "cpu_percent", "memory_percent", "battery_percent"} {
			if _, ok := m[key]; !ok {
				t.Errorf("%s missing %s: %v", target, key, m)
			}
		}
	}

	rec := doJSON(t, mux, "GET", "/api/system/disk", nil)
	if m := decodeMap(t, rec); rec.Code != http.StatusOK {
		t.Errorf("disk: status %d, body %v", rec.Code, m)
	}

	rec = doJSON(t, mux, "GET", "/api/system/processes", nil)
	var procs []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &procs); err != nil {
		t.Fatalf("decode processes: %v", err)
	}
	if len(procs) > processListLimit {
		t.Errorf("process rows = %d, want <= %d", len(procs), processListLimit)
	}
}
