package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igmonitor/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored Instagram session",
	Long: `Manage the Instagram session the monitor uses for story access.

The session is stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback for containers)

Never share your session cookies or config files!`,
}

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store Instagram session cookies securely",
	Long: `Store Instagram session cookies securely.

You will be prompted for:
  - Session ID (from the sessionid cookie)
  - CSRF Token (from the csrftoken cookie)
  - User Agent (optional, press Enter for default)

To get these values:
1. Log into Instagram in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Find and copy the sessionid and csrftoken values`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

// authShowCmd represents the auth show command
var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored session with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runAuthShow,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authLogoutCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, err := manager.Load(""); err == nil && existing != nil {
		fmt.Print("A session is already stored. Replace it? (y/N): ")
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("Enter your cookie values (they will be hidden as you type):")
	fmt.Println()

	fmt.Print("sessionid cookie value: ")
	sessionID, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read session ID: %w", err)
	}
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	fmt.Print("csrftoken cookie value: ")
	csrfToken, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read CSRF token: %w", err)
	}
	if csrfToken == "" {
		return fmt.Errorf("CSRF token is required")
	}

	fmt.Print("User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	session := &auth.Session{
		SessionID: sessionID,
		CSRFToken: csrfToken,
		UserAgent: userAgent,
	}
	if err := manager.Save(session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	masked := auth.Masked(session)
	fmt.Println("\nSession stored.")
	fmt.Printf("  Session ID: %s\n", masked.SessionID)
	fmt.Printf("  CSRF Token: %s\n", masked.CSRFToken)
	fmt.Println("\nStory monitoring is now available. Scheduled runs pick the session up automatically.")
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	session, err := manager.Load("")
	if err != nil {
		fmt.Println("No session stored. Run 'igmonitor auth login' to add one.")
		return nil
	}

	masked := auth.Masked(session)
	fmt.Printf("Session ID:  %s\n", masked.SessionID)
	fmt.Printf("CSRF Token:  %s\n", masked.CSRFToken)
	if masked.UserAgent != "" {
		fmt.Printf("User Agent:  %s\n", masked.UserAgent)
	}
	if !masked.UpdatedAt.IsZero() {
		fmt.Printf("Updated At:  %s\n", masked.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	if err := manager.Delete(""); err != nil {
		fmt.Println("No session stored.")
		return nil
	}
	fmt.Println("Session removed.")
	return nil
}

// readSecret reads a value from stdin without echoing
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
