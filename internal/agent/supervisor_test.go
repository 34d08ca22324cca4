package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/resonancehq/resonance/internal/providers"
	"github.com/resonancehq/resonance/internal/transcript"
)

func TestSuperviseVerdicts(t *testing.T) {
	cases := []struct {
		name            string
		reply           string
		wantStatus      string
		wantInstruction string
	}{
		{
			name:       "complete",
			reply:      `{"status":"COMPLETE","instruction":""}`,
			wantStatus: VerdictComplete,
		},
		{
			name:            "incomplete with instruction",
			reply:           `{"status":"INCOMPLETE","instruction":"Read the second file too."}`,
			wantStatus:      VerdictIncomplete,
			wantInstruction: "Read the second file too.",
		},
		{
			name:            "incomplete lowercase",
			reply:           `{"status":"incomplete","instruction":"Keep going."}`,
			wantStatus:      VerdictIncomplete,
			wantInstruction: "Keep going.",
		},
		{
			name:            "incomplete without instruction",
			reply:           `{"status":"INCOMPLETE","instruction":""}`,
			wantStatus:      VerdictIncomplete,
			wantInstruction: "The task looks unfinished. Continue working on the user's request.",
		},
		{
			name:       "malformed json treated as complete",
			reply:      "definitely not json",
			wantStatus: VerdictComplete,
		},
		{
			name:       "unknown status treated as complete",
			reply:      `{"status":"MAYBE","instruction":"who knows"}`,
			wantStatus: VerdictComplete,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th := newTestHost(t, nil)
			th.transcripts.Append("s1", transcript.Message{Role: "user", Content: "fix the bug"})
			th.transcripts.Append("s1", transcript.Message{Role: "assistant", Content: "I looked at one file."})
			th.fake.chats = []providers.ChatResponse{{Content: tc.reply}}

			_, profile := th.cfg.Snapshot().ActiveProfile()
			v := th.host.supervise(context.Background(), &turn{
				session:  "s1",
				userText: "fix the bug",
				provider: th.fake,
				profile:  profile,
			})

			if v.Status != tc.wantStatus {
				t.Fatalf("status = %q, want %q", v.Status, tc.wantStatus)
			}
			if tc.wantInstruction != "" && v.Instruction != tc.wantInstruction {
				t.Fatalf("instruction = %q, want %q", v.Instruction, tc.wantInstruction)
			}

			// The verdict call runs in JSON mode with the request quoted.
			req := th.fake.chatReqs[0]
			if req.Options[providers.OptResponseFormat] == nil {
				t.Fatal("missing response_format")
			}
			if !strings.Contains(req.Messages[0].Content, "fix the bug") {
				t.Fatal("prompt missing the user request")
			}
		})
	}
}

func TestSuperviseEmptyTranscript(t *testing.T) {
	th := newTestHost(t, nil)
	_, profile := th.cfg.Snapshot().ActiveProfile()

	v := th.host.supervise(context.Background(), &turn{
		session:  "never_written",
		userText: "anything",
		provider: th.fake,
		profile:  profile,
	})
	if v.Status != VerdictComplete {
		t.Fatalf("status = %q", v.Status)
	}
	if th.fake.chatCalls() != 0 {
		t.Fatal("supervisor called the model with nothing to evaluate")
	}
}

func TestTranscriptTail(t *testing.T) {
	th := newTestHost(t, nil)
	for i := 0; i < 6; i++ {
		th.transcripts.Append("s1", transcript.Message{Role: "user", Content: strings.Repeat("x", i+1)})
	}
	th.transcripts.Append("s1", transcript.Message{
		Role:    "assistant",
		Content: "checking",
		ToolCalls: []providers.ToolCall{{
			ID:   "call_9",
			Name: "read_file_content",
		}},
	})

	tail := th.host.transcriptTail("s1", 5)
	lines := strings.Split(strings.TrimRight(tail, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("tail lines = %d: %q", len(lines), tail)
	}
	if lines[0] != "user: xxx" {
		t.Fatalf("first line = %q", lines[0])
	}
	if lines[4] != "assistant: checking [Tool Call: read_file_content]" {
		t.Fatalf("last line = %q", lines[4])
	}
}
