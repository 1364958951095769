// Package main implements the dialogctl CLI for manual operations
// against a running dialogd server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the dialogd HTTP server
	serverURL string
	sessionID string
	userID    string
	locale    string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dialogctl",
	Short: "CLI for dialogd server operations",
	Long: `dialogctl is a command-line interface for interacting with a dialogd server.
It provides commands for sending conversation turns, inspecting and
resetting sessions, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "dialogd server URL")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "conversation session id")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id")

	messageCmd.Flags().StringVar(&locale, "locale", "", "locale hint, e.g. zh-CN")

	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(healthCmd)
}

var messageCmd = &cobra.Command{
	Use:   "message <text>",
	Short: "Send one conversation turn",
	Long: `Send a user message to the dialogd server and print the turn result.

Examples:
  # Send a message
  dialogctl message --session demo "hello"

  # Send as a named user against a different server
  dialogctl message --server http://localhost:9090 --session demo --user alice "hello"`,
	Args: cobra.ExactArgs(1),
	RunE: runMessage,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the durable session state",
	Args:  cobra.NoArgs,
	RunE:  runSession,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a conversation session",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check dialogd server health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func requireSession() error {
	if sessionID == "" {
		return fmt.Errorf("--session is required")
	}
	return nil
}

// postJSON sends body to path and returns the raw response body.
func postJSON(path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, data)
	}
	return data, nil
}

func printJSON(data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

func runMessage(_ *cobra.Command, args []string) error {
	if err := requireSession(); err != nil {
		return err
	}

	data, err := postJSON("/api/v1/conversation/message", map[string]string{
		"session_id": sessionID,
		"user_id":    userID,
		"message":    args[0],
		"locale":     locale,
	})
	if err != nil {
		return err
	}
	return printJSON(data)
}

func runSession(*cobra.Command, []string) error {
	if err := requireSession(); err != nil {
		return err
	}

	resp, err := httpClient().Get(fmt.Sprintf("%s/api/v1/conversation/session?session_id=%s&user_id=%s",
		serverURL, sessionID, userID))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("session %q not found", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, data)
	}
	return printJSON(data)
}

func runReset(*cobra.Command, []string) error {
	if err := requireSession(); err != nil {
		return err
	}

	if _, err := postJSON("/api/v1/conversation/reset", map[string]string{
		"session_id": sessionID,
		"user_id":    userID,
	}); err != nil {
		return err
	}
	fmt.Printf("session %q reset\n", sessionID)
	return nil
}

func runHealth(*cobra.Command, []string) error {
	resp, err := httpClient().Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	fmt.Println("ok")
	return nil
}
