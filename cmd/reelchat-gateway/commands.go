// ABOUTME: Setup and operator commands for reelchat-gateway
// ABOUTME: init writes a config, token issues JWTs, user add seeds the user table, health probes /health

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/config"
	"github.com/2389/reelchat/internal/gateway"
	"github.com/2389/reelchat/internal/store"
)

// parseFlags reads "--name value" and "--name=value" pairs. Repeated flags
// accumulate. Only names listed in allowed are accepted.
func parseFlags(args []string, allowed ...string) (map[string][]string, error) {
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}

	out := make(map[string][]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		out[name] = append(out[name], value)
	}
	return out, nil
}

func first(flags map[string][]string, name string) string {
	if v := flags[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// runInit writes a config file with defaults and a random JWT secret.
func runInit(args []string) error {
	flags, err := parseFlags(args, "path", "force")
	if err != nil {
		return err
	}
	outputFile := first(flags, "path")
	if outputFile == "" {
		outputFile = getConfigPath()
	}

	if _, err := os.Stat(outputFile); err == nil && first(flags, "force") != "true" {
		return fmt.Errorf("%s already exists (pass --force true to overwrite)", outputFile)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}

	cfg := config.Defaults()
	cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(secret)
	cfg.Database.Path = filepath.Join(filepath.Dir(outputFile), "reelchat.db")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	header := "# reelchat-gateway configuration\n# Generated by reelchat-gateway init\n\n"

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", outputFile)
	fmt.Println()
	fmt.Println("  Next:")
	fmt.Println("    reelchat-gateway user add --id alice --name Alice")
	fmt.Println("    reelchat-gateway token --user alice")
	fmt.Println("    reelchat-gateway serve")
	return nil
}

func runHealth(ctx context.Context) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runToken prints a JWT for a user, signed with the configured secret.
func runToken(args []string) error {
	flags, err := parseFlags(args, "user", "role", "ttl")
	if err != nil {
		return err
	}
	userID := strings.TrimSpace(first(flags, "user"))
	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ttl := cfg.Auth.TokenTTL
	if raw := first(flags, "ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid --ttl: %w", err)
		}
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(userID, ttl, flags["role"]...)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// runUser handles "user add".
func runUser(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return fmt.Errorf("usage: reelchat-gateway user add --id ID [--username NAME] [--name DISPLAY] [--avatar URL]")
	}
	flags, err := parseFlags(args[1:], "id", "username", "name", "avatar")
	if err != nil {
		return err
	}

	id := strings.TrimSpace(first(flags, "id"))
	if id == "" {
		return fmt.Errorf("--id flag is required")
	}
	username := first(flags, "username")
	if username == "" {
		username = id
	}
	displayName := strings.TrimSpace(first(flags, "name"))
	if len(displayName) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := gateway.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	user := &store.User{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		AvatarURL:   first(flags, "avatar"),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ User %s saved\n", id)
	return nil
}
