package notify

import (
	"strings"
	"testing"
)

func TestFuncAdapter(t *testing.T) {
	var gotTitle, gotBody string
	sink := Func(func(title, body string) {
		gotTitle, gotBody = title, body
	})

	sink.Send("Resonance", "disk almost full")

	if gotTitle != "Resonance" || gotBody != "disk almost full" {
		t.Fatalf("sink received %q / %q", gotTitle, gotBody)
	}
}

func TestLogSinkDoesNotPanic(t *testing.T) {
	Log().Send("title", "body")
}

func TestDesktopCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string // first argv element, "" when no notifier exists
	}{
		{goos: "linux", want: "notify-send"},
		{goos: "darwin", want: "osascript"},
		{goos: "windows", want: ""},
		{goos: "plan9", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			argv := desktopCommand(tt.goos, "t", "b")
			if tt.want == "" {
				if len(argv) != 0 {
					t.Fatalf("expected no command, got %v", argv)
				}
				return
			}
			if len(argv) == 0 || argv[0] != tt.want {
				t.Fatalf("expected %q command, got %v", tt.want, argv)
			}
		})
	}
}

func TestDesktopCommandQuotesAppleScript(t *testing.T) {
	argv := desktopCommand("darwin", `say "hi"`, `line1
line2`)
	if len(argv) != 3 {
		t.Fatalf("unexpected argv: %v", argv)
	}
	script := argv[2]
	if !strings.Contains(script, `\"hi\"`) {
		t.Errorf("title quotes not escaped: %s", script)
	}
	if strings.Contains(script, "\n") {
		t.Errorf("raw newline survived into script: %s", script)
	}
}
