// ABOUTME: Admin CLI for reelchat-gateway presence inspection
// ABOUTME: Talks to the PresenceService over gRPC with JWT authentication

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/2389/reelchat/internal/gateway"
)

const banner = `
          _           _
 _ __ ___| |   __ _  __| |_ __ ___ (_)_ __
| '__/ __| |  / _' |/ _' | '_ ' _ \| | '_ \
| | | (__| | | (_| | (_| | | | | | | | | | |
|_|  \___|_|  \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := getEnv("REELCHAT_GATEWAY_GRPC", "localhost:50051")
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "online":
		err = withClient(addr, token, cmdOnline)
	case "check":
		if len(args) != 1 {
			err = fmt.Errorf("usage: reelchat-admin check <user-id>")
			break
		}
		err = withClient(addr, token, func(ctx context.Context, c *gateway.PresenceClient) error {
			return cmdCheck(ctx, c, args[0])
		})
	case "stats":
		err = withClient(addr, token, cmdStats)
	case "kick":
		if len(args) != 1 {
			err = fmt.Errorf("usage: reelchat-admin kick <user-id>")
			break
		}
		err = withClient(addr, token, func(ctx context.Context, c *gateway.PresenceClient) error {
			return cmdKick(ctx, c, args[0])
		})
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: reelchat-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  online            List users with a live connection (admin)")
	fmt.Println("  check <user-id>   Show whether one user is online")
	fmt.Println("  stats             Show online user and connection counts (admin)")
	fmt.Println("  kick <user-id>    Close every connection of a user (admin)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  REELCHAT_GATEWAY_GRPC   Gateway gRPC address (default: localhost:50051)")
	fmt.Println("  REELCHAT_TOKEN          JWT authentication token (required)")
	fmt.Println()
}

// withClient connects, attaches the token and runs fn with a timeout.
func withClient(addr, token string, fn func(context.Context, *gateway.PresenceClient) error) error {
	if token == "" {
		return fmt.Errorf("REELCHAT_TOKEN environment variable is required")
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(authContext(token), 10*time.Second)
	defer cancel()
	return fn(ctx, gateway.NewPresenceClient(conn))
}

// authContext creates a context with the JWT token in metadata
func authContext(token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewOutgoingContext(context.Background(), md)
}

func cmdOnline(ctx context.Context, c *gateway.PresenceClient) error {
	users, err := c.ListOnline(ctx)
	if err != nil {
		return fmt.Errorf("ListOnline: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("Nobody is online.")
		return nil
	}

	green := color.New(color.FgGreen)
	for _, id := range users {
		green.Print("  ● ")
		fmt.Println(id)
	}
	return nil
}

func cmdCheck(ctx context.Context, c *gateway.PresenceClient, userID string) error {
	online, err := c.IsOnline(ctx, userID)
	if err != nil {
		return fmt.Errorf("IsOnline: %w", err)
	}
	if online {
		color.Green("%s is online", userID)
	} else {
		color.New(color.FgHiBlack).Printf("%s is offline\n", userID)
	}
	return nil
}

func cmdStats(ctx context.Context, c *gateway.PresenceClient) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return fmt.Errorf("Stats: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ONLINE USERS\tCONNECTIONS\n")
	fmt.Fprintf(w, "%d\t%d\n", stats.OnlineUsers, stats.Connections)
	return w.Flush()
}

func cmdKick(ctx context.Context, c *gateway.PresenceClient, userID string) error {
	n, err := c.Disconnect(ctx, userID)
	if err != nil {
		return fmt.Errorf("Disconnect: %w", err)
	}
	if n == 0 {
		fmt.Printf("%s had no live connections\n", userID)
		return nil
	}
	color.Green("Closed %d connection(s) for %s", n, userID)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

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
