package agent

import (
	"strings"
	"testing"

	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/skills"
)

func TestBuildSystemPromptSections(t *testing.T) {
	th := newTestHost(t, nil)
	err := th.cfg.UpdateUserProfile(func(u *config.UserProfile) error {
		u.UserInfo["name"] = "Alex"
		u.UserInfo["editor"] = "vim"
		u.KnownProjects["resonance"] = "/home/alex/resonance"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}

	prompt := th.host.buildSystemPrompt(
		th.cfg.Snapshot(),
		nil,
		[]string{"User prefers dark mode"},
		"Earlier we set up the repo.",
		"deploy the app",
	)

	for _, want := range []string{
		"Role: Resonance (Advanced AI Host)",
		"Core Principles:",
		"[User Profile & Preferences]\n- editor: vim\n- name: Alex\n",
		"- Known Projects/Paths:\n  * resonance: /home/alex/resonance\n",
		"[Available Skills]\nNo specialized skills found.",
		"[Relevant Long-term Memories]\n- User prefers dark mode\n(Use these memories to answer contextually if applicable)",
		"[Previous Conversation Summary]\nEarlier we set up the repo.\n(This is what happened before the current active window)",
		"[Current Mission]\ndeploy the app",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\n---\n%s", want, prompt)
		}
	}

	// Section order: identity, profile, skills, memories, summary, mission.
	markers := []string{
		"Role: Resonance",
		"[User Profile & Preferences]",
		"[Available Skills]",
		"[Relevant Long-term Memories]",
		"[Previous Conversation Summary]",
		"[Current Mission]",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(prompt, m)
		if idx <= last {
			t.Fatalf("section %q out of order (index %d after %d)", m, idx, last)
		}
		last = idx
	}
}

func TestBuildSystemPromptActiveSkill(t *testing.T) {
	th := newTestHost(t, nil)
	active := &skills.Active{Name: "note_taker", SOP: "Always append to notes.md, never overwrite."}

	prompt := th.host.buildSystemPrompt(th.cfg.Snapshot(), active, nil, "", "take a note")

	if !strings.Contains(prompt, "[Active Skill: note_taker]") {
		t.Fatalf("missing active-skill header:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Always append to notes.md, never overwrite.") {
		t.Fatal("missing SOP body")
	}
	if !strings.Contains(prompt, "(Follow this SOP strictly while the skill is active)") {
		t.Fatal("missing SOP directive")
	}
	if strings.Contains(prompt, "[Available Skills]") {
		t.Fatal("discovery index leaked into JIT mode")
	}
}

func TestBuildSystemPromptOmitsEmptySections(t *testing.T) {
	th := newTestHost(t, nil)

	prompt := th.host.buildSystemPrompt(th.cfg.Snapshot(), nil, nil, "", "hello")

	if strings.Contains(prompt, "[Relevant Long-term Memories]") {
		t.Fatal("memory section rendered with no memories")
	}
	if strings.Contains(prompt, "[Previous Conversation Summary]") {
		t.Fatal("summary section rendered with no summary")
	}
	// The profile header stays even when empty.
	if !strings.Contains(prompt, "[User Profile & Preferences]") {
		t.Fatal("profile header missing")
	}
}
