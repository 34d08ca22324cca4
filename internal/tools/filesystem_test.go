package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListDirectoryTree(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "README.md"), "hello")
	mustWrite(t, filepath.Join(root, "src", "main.go"), "package main")
	mustWrite(t, filepath.Join(root, "node_modules", "x", "y.js"), "junk")
	mustWrite(t, filepath.Join(root, "image.png"), "binary")

	res := NewListDirectoryTool().Execute(context.Background(), map[string]interface{}{
		"directory_path": root,
	})
	out := res.ForLLM

	for _, want := range []string{"📂 " + root, "📂 src/", "📄 main.go", "📄 README.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, banned := range []string{"node_modules", "image.png"} {
		if strings.Contains(out, banned) {
			t.Errorf("output should ignore %q:\n%s", banned, out)
		}
	}
}

func TestListDirectoryMissing(t *testing.T) {
	res := NewListDirectoryTool().Execute(context.Background(), map[string]interface{}{
		"directory_path": "/no/such/dir",
	})
	if !res.IsError {
		t.Error("missing directory should produce an error result")
	}
	if res.ForLLM != "Error: Directory '/no/such/dir' does not exist." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestListDirectoryNotADir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	mustWrite(t, file, "x")

	res := NewListDirectoryTool().Execute(context.Background(), map[string]interface{}{
		"directory_path": file,
	})
	if res.ForLLM != fmt.Sprintf("Error: '%s' is not a directory.", file) {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestListDirectoryDepthCap(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a", "b", "c", "deep.txt"), "x")

	res := NewListDirectoryTool().Execute(context.Background(), map[string]interface{}{
		"directory_path": root,
		"depth":          float64(1),
	})
	out := res.ForLLM
	if !strings.Contains(out, "📂 a/") {
		t.Errorf("first level missing:\n%s", out)
	}
	if strings.Contains(out, "deep.txt") {
		t.Errorf("depth cap ignored:\n%s", out)
	}
}

func TestListDirectoryNonRecursive(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "src", "main.go"), "package main")

	res := NewListDirectoryTool().Execute(context.Background(), map[string]interface{}{
		"directory_path": root,
		"recursive":      false,
	})
	out := res.ForLLM
	if !strings.Contains(out, "📂 src/") {
		t.Errorf("top-level dir missing:\n%s", out)
	}
	if strings.Contains(out, "main.go") {
		t.Errorf("non-recursive listing descended:\n%s", out)
	}
}

func TestSearchFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "notes.md"), "The flux capacitor hums.")
	mustWrite(t, filepath.Join(root, "other.txt"), "nothing here")
	mustWrite(t, filepath.Join(root, "binary.exe"), "flux")

	tool := NewSearchFilesTool()
	res := tool.Execute(context.Background(), map[string]interface{}{
		"directory_path": root,
		"keyword":        "FLUX",
	})
	out := res.ForLLM
	if !strings.Contains(out, "Found 'FLUX' in the following files:") {
		t.Errorf("header missing:\n%s", out)
	}
	if !strings.Contains(out, "notes.md") {
		t.Errorf("match missing:\n%s", out)
	}
	if strings.Contains(out, "other.txt") || strings.Contains(out, "binary.exe") {
		t.Errorf("false positives:\n%s", out)
	}
	if !strings.Contains(out, "read_file_content") {
		t.Errorf("follow-up hint missing:\n%s", out)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{
		"directory_path": root,
		"keyword":        "unobtainium",
	})
	if !strings.Contains(res.ForLLM, "No files found containing 'unobtainium'") {
		t.Errorf("miss message = %q", res.ForLLM)
	}
}

func TestSearchFilesMissingPath(t *testing.T) {
	res := NewSearchFilesTool().Execute(context.Background(), map[string]interface{}{
		"directory_path": "/no/such/dir",
		"keyword":        "x",
	})
	if res.ForLLM != "Error: Path '/no/such/dir' not found." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestSearchFilesInterrupted(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewSearchFilesTool().Execute(ctx, map[string]interface{}{
		"directory_path": root,
		"keyword":        "x",
	})
	if res.ForLLM != "[System]: Search interrupted." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	mustWrite(t, path, "contents here")

	res := NewReadFileTool().Execute(context.Background(), map[string]interface{}{
		"file_path": path,
	})
	if res.ForLLM != "contents here" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestReadFileMissing(t *testing.T) {
	res := NewReadFileTool().Execute(context.Background(), map[string]interface{}{
		"file_path": "/no/such/file.txt",
	})
	if res.ForLLM != "Error: File '/no/such/file.txt' does not exist." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestReadFileBinaryRefusal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	mustWrite(t, path, "%PDF-1.4")

	res := NewReadFileTool().Execute(context.Background(), map[string]interface{}{
		"file_path": path,
	})
	if !strings.Contains(res.ForLLM, "appears to be binary") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "report.pdf") {
		t.Errorf("file name missing: %q", res.ForLLM)
	}
}

func TestReadFileTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	mustWrite(t, path, strings.Repeat("a", readMaxBytes+100))

	res := NewReadFileTool().Execute(context.Background(), map[string]interface{}{
		"file_path": path,
	})
	if !strings.Contains(res.ForLLM, "[System Warning]: File content truncated") {
		t.Errorf("truncation warning missing, got %d bytes", len(res.ForLLM))
	}
	if !strings.Contains(res.ForLLM, fmt.Sprintf("Read first %d bytes.", readMaxBytes)) {
		t.Errorf("cap size missing from warning: %q", res.ForLLM[len(res.ForLLM)-120:])
	}
}

func TestReadFileInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.txt")
	if err := os.WriteFile(path, []byte{'o', 'k', 0xff, 0xfe, '!'}, 0o644); err != nil {
		t.Fatal(err)
	}

	res := NewReadFileTool().Execute(context.Background(), map[string]interface{}{
		"file_path": path,
	})
	if !strings.Contains(res.ForLLM, "ok") || !strings.Contains(res.ForLLM, "�") {
		t.Errorf("lossy decode missing: %q", res.ForLLM)
	}
}
