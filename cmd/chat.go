package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/resonancehq/resonance/internal/bus"
	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/transcript"
)

func chatCmd() *cobra.Command {
	var (
		session string
		sync    bool
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to a running host (interactive when no message is given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if addr == "" {
				addr = resolveServerAddr()
			}
			message := ""
			if len(args) > 0 {
				message = args[0]
			}
			if sync {
				runChatSync(addr, session, message)
				return
			}
			runChatStream(addr, session, message)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", transcript.MainSession, "session id")
	cmd.Flags().BoolVar(&sync, "sync", false, "use the synchronous REST endpoint instead of streaming")
	cmd.Flags().StringVar(&addr, "addr", "", "host address (default: from config)")
	return cmd
}

// resolveServerAddr reads the configured bind address so the client
// finds the host without extra flags.
func resolveServerAddr() string {
	cfg, err := config.Open(resolveDataDir())
	if err != nil {
		return "127.0.0.1:8000"
	}
	snap := cfg.Snapshot()
	host := snap.Config.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port := snap.Config.Server.Port
	if port == 0 {
		port = 8000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// runChatSync posts one message to /api/chat/sync and prints the reply.
func runChatSync(addr, session, message string) {
	if message == "" {
		fmt.Fprintln(os.Stderr, "Error: --sync requires a message argument")
		os.Exit(1)
	}
	body, _ := json.Marshal(map[string]string{
		"message":    message,
		"session_id": session,
	})
	resp, err := http.Post(fmt.Sprintf("http://%s/api/chat/sync", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Is the host running? Start it with: resonance serve\n")
		os.Exit(1)
	}
	defer resp.Body.Close()

	var reply struct {
		Status  string `json:"status"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		fmt.Fprintf(os.Stderr, "Error: malformed response: %v\n", err)
		os.Exit(1)
	}
	if reply.Status != "success" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", reply.Content)
		os.Exit(1)
	}
	fmt.Println(reply.Content)
}

// runChatStream connects to /ws/chat and streams events. With a message
// it runs one turn and exits; without one it drops into a REPL.
func runChatStream(addr, session, message string) {
	ctx := context.Background()
	wsURL := fmt.Sprintf("ws://%s/ws/chat", addr)

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WebSocket connect failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Is the host running? Start it with: resonance serve\n")
		os.Exit(1)
	}
	conn.SetReadLimit(1 << 20)
	defer conn.Close(websocket.StatusNormalClosure, "")

	if message != "" {
		if err := streamTurn(ctx, conn, session, message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "\nResonance Interactive Chat\n")
	fmt.Fprintf(os.Stderr, "Session: %s\n", session)
	fmt.Fprintf(os.Stderr, "Type \"exit\" to quit, \"/new\" for a new session, \"/stop\" to abort a turn\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		}
		if input == "/new" {
			session = fmt.Sprintf("session_%d", time.Now().Unix())
			fmt.Fprintf(os.Stderr, "New session: %s\n\n", session)
			continue
		}

		if err := streamTurn(ctx, conn, session, input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			return
		}
		fmt.Fprintln(os.Stderr)
	}
}

// streamTurn sends one message and renders events until the turn is done.
// Prose goes to stdout; everything else goes to stderr.
func streamTurn(ctx context.Context, conn *websocket.Conn, session, message string) error {
	payload, _ := json.Marshal(map[string]string{
		"message":    message,
		"session_id": session,
	})
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var ev bus.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		// The host broadcasts every session's events; show only ours,
		// plus sentinel alerts which are host-wide.
		if ev.Type == bus.EventSentinelAlert {
			fmt.Fprintf(os.Stderr, "\n[sentinel] %s\n", ev.Content)
			continue
		}
		if ev.SessionID != "" && ev.SessionID != session {
			continue
		}

		switch ev.Type {
		case bus.EventUser:
			// echo of our own message
		case bus.EventDelta:
			fmt.Print(ev.Content)
		case bus.EventTool:
			fmt.Fprintf(os.Stderr, "\n  [tool] %s\n", ev.Name)
		case bus.EventStatus:
			fmt.Fprintf(os.Stderr, "%s\n", ev.Content)
		case bus.EventError:
			fmt.Fprintf(os.Stderr, "Error: %s\n", ev.Content)
		case bus.EventDone:
			fmt.Println()
			return nil
		}
	}
}
