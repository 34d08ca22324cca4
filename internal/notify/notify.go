// Package notify raises user-facing notifications for turns that run
// without a human watching, like sentinel reactions. The default sink
// writes to the structured log; Desktop shells out to the platform
// notifier when one exists.
package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// Sink receives notifications outside the chat event stream.
type Sink interface {
	Send(title, body string)
}

// Func adapts a plain function to Sink.
type Func func(title, body string)

// Send implements Sink.
func (f Func) Send(title, body string) { f(title, body) }

// Log returns a sink that records notifications in the structured log.
func Log() Sink {
	return Func(func(title, body string) {
		slog.Info("notify.toast", "title", title, "body", body)
	})
}

// commandTimeout bounds the notifier subprocess.
const commandTimeout = 5 * time.Second

// Desktop returns a sink backed by the platform notification command:
// notify-send on Linux, osascript on macOS. When the command is missing
// or the platform has none, notifications fall back to Log.
func Desktop() Sink {
	log := Log()
	return Func(func(title, body string) {
		argv := desktopCommand(runtime.GOOS, title, body)
		if len(argv) == 0 {
			log.Send(title, body)
			return
		}
		path, err := exec.LookPath(argv[0])
		if err != nil {
			log.Send(title, body)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := exec.CommandContext(ctx, path, argv[1:]...).Run(); err != nil {
			slog.Debug("notify.desktop.failed", "command", argv[0], "error", err)
			log.Send(title, body)
		}
	})
}

// desktopCommand builds the notifier argv for an OS; empty means none.
func desktopCommand(goos, title, body string) []string {
	switch goos {
	case "linux":
		return []string{"notify-send", title, body}
	case "darwin":
		script := "display notification " + strconv.Quote(body) + " with title " + strconv.Quote(title)
		return []string{"osascript", "-e", script}
	default:
		return nil
	}
}
