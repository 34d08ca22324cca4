package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLearnCopiesLocalDir(t *testing.T) {
	reg := newTestRegistry(t)

	src := filepath.Join(t.TempDir(), "mytool")
	if err := os.MkdirAll(filepath.Join(src, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	doc := "---\nname: mytool\ndescription: A learned tool.\n---\n\nSOP body.\n"
	if err := os.WriteFile(filepath.Join(src, "SKILL.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "data", "seed.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, msg := reg.Learn(context.Background(), src)
	if !ok {
		t.Fatalf("Learn failed: %s", msg)
	}
	if want := "Success: Skill 'mytool' learned and registered."; msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}

	sk, found := reg.Get("mytool")
	if !found {
		t.Fatal("learned skill not in registry")
	}
	if sk.Description != "A learned tool." {
		t.Fatalf("description = %q", sk.Description)
	}
	if _, err := os.Stat(filepath.Join(reg.Root(), "mytool", "data", "seed.txt")); err != nil {
		t.Fatalf("nested file not copied: %v", err)
	}
}

func TestLearnStripsGitSuffixFromName(t *testing.T) {
	reg := newTestRegistry(t)

	src := filepath.Join(t.TempDir(), "webtool.git")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "SKILL.md"), []byte("---\nname: webtool\n---\nBody.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, msg := reg.Learn(context.Background(), src)
	if !ok {
		t.Fatalf("Learn failed: %s", msg)
	}
	if _, found := reg.Get("webtool"); !found {
		t.Fatal("skill not registered under .git-stripped name")
	}
}

func TestLearnRejectsExistingName(t *testing.T) {
	reg := newTestRegistry(t)
	if err := os.MkdirAll(filepath.Join(reg.Root(), "taken"), 0o755); err != nil {
		t.Fatal(err)
	}

	ok, msg := reg.Learn(context.Background(), filepath.Join(t.TempDir(), "taken"))
	if ok {
		t.Fatal("Learn succeeded for an existing name")
	}
	if want := "Error: Skill 'taken' already exists."; msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}

func TestLearnRollsBackOnMissingSOP(t *testing.T) {
	reg := newTestRegistry(t)

	src := filepath.Join(t.TempDir(), "broken")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, msg := reg.Learn(context.Background(), src)
	if ok {
		t.Fatal("Learn succeeded without SKILL.md")
	}
	if want := "Error: Invalid Skill format. 'SKILL.md' is missing in the skill folder."; msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
	if _, err := os.Stat(filepath.Join(reg.Root(), "broken")); !os.IsNotExist(err) {
		t.Fatalf("partial skill dir not rolled back: %v", err)
	}
}

func TestLearnInvalidSource(t *testing.T) {
	reg := newTestRegistry(t)

	ok, msg := reg.Learn(context.Background(), "/no/such/path/anywhere")
	if ok {
		t.Fatal("Learn succeeded for a bogus source")
	}
	if want := "Error: Invalid URL or Path. Please check if the path exists or the URL is correct."; msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}
