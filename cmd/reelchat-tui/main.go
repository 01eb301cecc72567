// ABOUTME: Terminal client for reelchat over the HTTP API and push channel
// ABOUTME: Line-oriented REPL with live messages, typing indicators, presence and unread badge

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chatview"
	"github.com/2389/reelchat/internal/client"
	"github.com/2389/reelchat/internal/session"
)

// getToken returns the JWT from REELCHAT_TOKEN or ~/.config/reelchat/token.
func getToken() string {
	if token := os.Getenv("REELCHAT_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "reelchat", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func main() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("REELCHAT_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	server := flag.String("server", defaultServer, "Gateway server URL")
	debug := flag.Bool("debug", false, "Log client internals to stderr")
	flag.Parse()

	token := getToken()
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: no token (set REELCHAT_TOKEN or write ~/.config/reelchat/token)")
		os.Exit(1)
	}
	userID, err := auth.SubjectUnverified(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading token: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelError
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fmt.Printf("reelchat-tui connecting to %s as %s\n", *server, userID)
	fmt.Println("Type /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, token, userID, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, token, userID string, logger *slog.Logger) error {
	ui := newScreen(userID)

	push, err := client.NewPushClient(server, token, client.PushOptions{
		OnStatus: ui.status,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var sess *session.Session
	sess = session.New(client.NewAPIClient(server, token, nil), push, session.Options{
		UserID:   userID,
		OnUnread: ui.unread,
		OnTyping: ui.typing,
		OnView: func() {
			if v := sess.View(); v != nil {
				ui.render(v.Items())
			}
		},
		Logger: logger,
	})
	defer sess.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(runCtx) }()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		ui.prompt(sess)

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if done := handleInput(ctx, sess, ui, input); done {
			return nil
		}
	}
}

// handleInput runs one line and reports whether the user asked to quit.
func handleInput(ctx context.Context, sess *session.Session, ui *screen, input string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		printHelp()

	case "/list":
		convs, err := sess.Conversations(reqCtx)
		if err != nil {
			ui.error(err)
			break
		}
		ui.conversations(convs, sess)

	case "/open":
		if arg == "" {
			fmt.Println("usage: /open <user id>")
			break
		}
		if _, err := sess.OpenPeer(reqCtx, arg); err != nil {
			ui.error(err)
		}

	case "/retry":
		v := sess.View()
		if v == nil {
			fmt.Println("No conversation open.")
			break
		}
		if err := v.Retry(reqCtx); err != nil {
			ui.error(err)
		}

	case "/older":
		v := sess.View()
		if v == nil {
			fmt.Println("No conversation open.")
			break
		}
		n, err := v.LoadOlder(reqCtx)
		if err != nil {
			ui.error(err)
			break
		}
		if n == 0 {
			fmt.Println("No older messages.")
		}

	case "/close":
		sess.CloseView(reqCtx)

	case "/online":
		fmt.Printf("Online: %s\n", strings.Join(sess.Online(), ", "))

	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Printf("Unknown command %s. /help lists commands.\n", cmd)
			break
		}
		sess.Keystroke()
		if _, err := sess.Send(reqCtx, input); err != nil {
			var sendErr *chatview.SendError
			if errors.As(err, &sendErr) {
				ui.error(sendErr.Err)
				fmt.Printf("  not sent: %q\n", sendErr.Content)
				break
			}
			ui.error(err)
		}
	}
	return false
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /list          List conversations with unread counts")
	fmt.Println("  /open <user>   Open the conversation with a user")
	fmt.Println("  /older         Load older messages")
	fmt.Println("  /retry         Retry loading a conversation that failed")
	fmt.Println("  /close         Close the open conversation")
	fmt.Println("  /online        Show who is online")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
	fmt.Println("Anything else is sent to the open conversation.")
}

var (
	gray   = color.New(color.FgHiBlack)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)
