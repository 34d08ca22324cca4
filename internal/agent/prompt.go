package agent

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/skills"
)

// baseIdentity is the fixed protocol blurb heading every system prompt.
const baseIdentity = `Role: Resonance (Advanced AI Host)
Objective: Assist the user by executing local commands, managing files, and planning complex tasks.
Environment: %s, POSIX shell.

Core Principles:
1. **Think Before Acting.** When complex tasks arise, break them down.
2. **Explore then Act.** When asked to find information in files, DO NOT guess. Use 'list_directory_files' or 'search_files_by_keyword' first, then 'read_file_content'.
3. **Multi-Step Tool Use.** You can use multiple tools or use tools multiple times in a sequence to complete a task. Analyze the output of each tool before proceeding.
4. **Robustness.** If a command fails, analyze the error and try a different approach.
5. **Memory.** You have access to long-term memory. Use it to recall user preferences and past projects.
6. **Autonomy (Sentinels).** You have a 'Sentinel System'. You can set triggers of Time, File, Behavior to wake yourself up later. Use this to be proactive.
`

// buildSystemPrompt assembles the identity section for one round: blurb,
// user profile, skill context (active SOP or discovery index), retrieved
// memories, rolling summary, and the mission anchor restating the user's
// original request. Rebuilt every round because the active skill can
// change mid-turn.
func (h *Host) buildSystemPrompt(snap config.Snapshot, active *skills.Active, memories []string, summary, mission string) string {
	var b strings.Builder
	fmt.Fprintf(&b, baseIdentity, runtime.GOOS)
	b.WriteString(profileSection(snap.User))
	b.WriteString(h.skillSection(active))
	b.WriteString(memorySection(memories))
	b.WriteString(summarySection(summary))
	b.WriteString(missionSection(mission))
	return b.String()
}

// profileSection renders the persistent user identity. The header is
// emitted even when no facts are stored yet.
func profileSection(user config.UserProfile) string {
	var b strings.Builder
	b.WriteString("\n[User Profile & Preferences]\n")
	for _, k := range sortedKeys(user.UserInfo) {
		fmt.Fprintf(&b, "- %s: %s\n", k, user.UserInfo[k])
	}
	if len(user.KnownProjects) > 0 {
		b.WriteString("- Known Projects/Paths:\n")
		for _, proj := range sortedKeys(user.KnownProjects) {
			fmt.Fprintf(&b, "  * %s: %s\n", proj, user.KnownProjects[proj])
		}
	}
	return b.String()
}

// skillSection switches between JIT mode (the active skill's full SOP)
// and discovery mode (a one-line index of what could be activated).
func (h *Host) skillSection(active *skills.Active) string {
	if active != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "\n[Active Skill: %s]\n", active.Name)
		b.WriteString(strings.TrimSpace(active.SOP))
		b.WriteString("\n(Follow this SOP strictly while the skill is active)\n")
		return b.String()
	}
	if h.skills == nil {
		return ""
	}
	return "\n[Available Skills]\n" + h.skills.Index() +
		"\n(Activate a skill with 'manage_skills' before using its tools)\n"
}

func memorySection(memories []string) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n[Relevant Long-term Memories]\n")
	for _, mem := range memories {
		fmt.Fprintf(&b, "- %s\n", mem)
	}
	b.WriteString("(Use these memories to answer contextually if applicable)\n")
	return b.String()
}

func summarySection(summary string) string {
	if summary == "" {
		return ""
	}
	return fmt.Sprintf("\n[Previous Conversation Summary]\n%s\n(This is what happened before the current active window)\n", summary)
}

// missionSection restates the original request at the bottom of the
// prompt; later rounds see it after every tool result.
func missionSection(mission string) string {
	if mission == "" {
		return ""
	}
	return fmt.Sprintf("\n[Current Mission]\n%s\n(Stay focused on this request until it is resolved)\n", mission)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
