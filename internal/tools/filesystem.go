package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	listMaxEntries   = 150
	listDefaultDepth = 2
	searchMaxFiles   = 50
	readMaxBytes     = 50 * 1024
)

var listIgnoreDirs = map[string]bool{
	".git": true, ".idea": true, ".vscode": true, "__pycache__": true,
	"node_modules": true, "venv": true, ".obsidian": true,
}

var listIgnoreExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".class": true,
	".pyc": true, ".png": true, ".jpg": true, ".jpeg": true, ".zip": true,
	".tar": true, ".gz": true,
}

var searchIgnoreDirs = map[string]bool{
	".git": true, ".obsidian": true, "node_modules": true, "__pycache__": true,
}

var searchTextExts = map[string]bool{
	".md": true, ".txt": true, ".py": true, ".json": true, ".yaml": true,
	".csv": true, ".log": true, ".xml": true, ".html": true, ".css": true,
	".js": true, ".go": true,
}

var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".png": true, ".jpg": true, ".zip": true,
	".pdf": true, ".docx": true,
}

// ListDirectoryTool renders a directory as a capped tree.
type ListDirectoryTool struct{}

func NewListDirectoryTool() *ListDirectoryTool { return &ListDirectoryTool{} }

func (t *ListDirectoryTool) Name() string { return "list_directory_files" }

func (t *ListDirectoryTool) Description() string {
	return "List files in a directory recursively. Use this to understand project structure or find specific files."
}

func (t *ListDirectoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"directory_path": map[string]interface{}{"type": "string", "description": "The absolute path."},
			"recursive":      map[string]interface{}{"type": "boolean", "description": "Default True."},
			"depth":          map[string]interface{}{"type": "integer", "description": "Max depth (default 2)."},
		},
		"required": []string{"directory_path"},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	dir, _ := args["directory_path"].(string)
	info, err := os.Stat(dir)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: Directory '%s' does not exist.", dir))
	}
	if !info.IsDir() {
		return ErrorResult(fmt.Sprintf("Error: '%s' is not a directory.", dir))
	}

	recursive := true
	if v, ok := args["recursive"].(bool); ok {
		recursive = v
	}
	depth := listDefaultDepth
	if v, ok := args["depth"].(float64); ok && int(v) > 0 {
		depth = int(v)
	}

	w := &treeWalker{recursive: recursive, maxDepth: depth}
	w.lines = append(w.lines, "📂 "+dir)
	w.walk(dir, 0, "")

	if len(w.lines) <= 1 {
		return NewResult(fmt.Sprintf("Directory '%s' is empty or contains only ignored items.", dir))
	}
	return NewResult(strings.Join(w.lines, "\n"))
}

type treeWalker struct {
	lines     []string
	fileCount int
	recursive bool
	maxDepth  int
}

func (w *treeWalker) walk(dir string, depth int, prefix string) {
	if depth > w.maxDepth {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.lines = append(w.lines, fmt.Sprintf("%s[Permission Denied: %v]", prefix, err))
		return
	}
	// Folders first, then case-insensitive by name.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	for i, entry := range entries {
		if w.fileCount >= listMaxEntries {
			if i == 0 {
				w.lines = append(w.lines, prefix+"... [Output truncated due to limit]")
			}
			return
		}

		name := entry.Name()
		isLast := i == len(entries)-1
		connector := "├── "
		if isLast {
			connector = "└── "
		}

		if entry.IsDir() {
			if listIgnoreDirs[name] {
				continue
			}
			w.lines = append(w.lines, prefix+connector+"📂 "+name+"/")
			if w.recursive && depth < w.maxDepth {
				childPrefix := prefix + "│   "
				if isLast {
					childPrefix = prefix + "    "
				}
				w.walk(filepath.Join(dir, name), depth+1, childPrefix)
			}
			continue
		}

		if listIgnoreExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		w.lines = append(w.lines, prefix+connector+"📄 "+name)
		w.fileCount++
	}
}

// SearchFilesTool greps text files under a directory for a keyword.
type SearchFilesTool struct{}

func NewSearchFilesTool() *SearchFilesTool { return &SearchFilesTool{} }

func (t *SearchFilesTool) Name() string { return "search_files_by_keyword" }

func (t *SearchFilesTool) Description() string {
	return "Grep search inside files."
}

func (t *SearchFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"directory_path": map[string]interface{}{"type": "string"},
			"keyword":        map[string]interface{}{"type": "string"},
		},
		"required": []string{"directory_path", "keyword"},
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	dir, _ := args["directory_path"].(string)
	keyword, _ := args["keyword"].(string)
	if _, err := os.Stat(dir); err != nil {
		return ErrorResult(fmt.Sprintf("Error: Path '%s' not found.", dir))
	}

	needle := strings.ToLower(keyword)
	var found []string
	scanned := 0
	interrupted := false

	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		// Cancel is honored between files, never mid-read.
		if ctx.Err() != nil {
			interrupted = true
			return filepath.SkipAll
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if searchIgnoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if scanned >= searchMaxFiles {
			return filepath.SkipAll
		}
		if !searchTextExts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		scanned++
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(string(data)), needle) {
			found = append(found, path)
		}
		return nil
	})

	if interrupted {
		return NewResult("[System]: Search interrupted.")
	}
	if len(found) == 0 {
		return NewResult(fmt.Sprintf("%s: No files found containing '%s' (Scanned %d files).", dir, keyword, scanned))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found '%s' in the following files:\n", keyword)
	for _, path := range found {
		fmt.Fprintf(&sb, "- %s\n", path)
	}
	sb.WriteString("\n(You can now use 'read_file_content' to read specific files from this list.)")
	return NewResult(sb.String())
}

// ReadFileTool reads a text file with a size cap and binary refusal.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string { return "read_file_content" }

func (t *ReadFileTool) Description() string {
	return "Read text content of a file."
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{"type": "string"},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	info, err := os.Stat(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: File '%s' does not exist.", path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if binaryExts[ext] {
		return NewResult(fmt.Sprintf("[System Warning]: File '%s' appears to be binary or requires special parsing (%s). Reading raw text is skipped.", filepath.Base(path), ext))
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error reading file: %v", err))
	}
	defer f.Close()

	buf := make([]byte, readMaxBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return ErrorResult(fmt.Sprintf("Error reading file: %v", err))
	}

	content := string(buf[:n])
	if !utf8.ValidString(content) {
		// Lossy fallback for legacy encodings.
		content = strings.ToValidUTF8(content, "�")
	}
	if info.Size() > readMaxBytes {
		content += fmt.Sprintf("\n\n[System Warning]: File content truncated (Size: %d bytes). Read first %d bytes.", info.Size(), readMaxBytes)
	}
	return NewResult(content)
}
