package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"immichporter/pkg/auth"
	"immichporter/pkg/config"
	"immichporter/pkg/immich"
	"immichporter/pkg/logger"
)

var authSkipVerify bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Immich server credentials",
	Long: `Manage stored Immich server credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (IMMICH_ENDPOINT / IMMICH_API_KEY)`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store Immich server credentials",
	Long: `Store an Immich server endpoint and API key securely.

You will be prompted for the server URL and an API key. The key is
created in the Immich web UI under Account Settings > API Keys; run
'immichporter auth guide' for a walkthrough.`,
	Example: `  # Interactive login for the default server
  immichporter auth login

  # Store a second server under a name
  immichporter auth login homelab`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthLogout,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored servers",
	Long:  `List all stored Immich servers with sanitized credential information.`,
	RunE:  runAuthList,
}

var authGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Show how to create an Immich API key",
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowAPIKeyGuide()
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authGuideCmd)

	authLoginCmd.Flags().BoolVar(&authSkipVerify, "skip-verify", false, "store credentials without pinging the server")
	authLoginCmd.Flags().BoolVar(&immichInsecure, "insecure", false, "skip TLS certificate verification")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	name := "default"
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Server '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Immich server URL (e.g. http://immich.local:2283): ")
	endpoint, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read endpoint: %w", err)
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	apiKey, err := auth.ReadAPIKey("API key (input hidden): ")
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	server := &auth.Server{
		Name:         name,
		Endpoint:     endpoint,
		APIKey:       apiKey,
		Insecure:     immichInsecure,
		LastModified: time.Now(),
	}

	if !authSkipVerify {
		fmt.Println("\nVerifying credentials...")
		client := immich.NewClient(&config.ImmichConfig{
			Endpoint: server.Endpoint,
			APIKey:   server.APIKey,
			Insecure: server.Insecure,
		}, logger.GetLogger())

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("server verification failed (use --skip-verify to store anyway): %w", err)
		}
		fmt.Println("Server is reachable.")
	}

	if err := manager.Store(server); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("\nCredentials stored for server '%s'\n", name)
	fmt.Println("\nNext steps:")
	fmt.Println("  immichporter immich albums     list server albums")
	fmt.Println("  immichporter reconcile         match recorded photos to assets")
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	name := "default"
	if len(args) > 0 {
		name = args[0]
	} else {
		servers, err := manager.List()
		if err == nil && len(servers) == 1 {
			name = servers[0].Name
		}
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Remove server '%s'? (y/N): ", name)
	input, _ := reader.ReadString('\n')
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
		return nil
	}

	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}
	fmt.Printf("Server removed: %s\n", name)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	servers, err := manager.List()
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No stored servers. Use 'immichporter auth login' to add one.")
		return nil
	}

	fmt.Println("Stored servers:")
	fmt.Println()
	for i, server := range servers {
		sanitized := auth.Sanitize(server)
		fmt.Printf("%d. Name: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Endpoint: %s\n", sanitized.Endpoint)
		fmt.Printf("   API Key: %s\n", sanitized.APIKey)
		if sanitized.Insecure {
			fmt.Println("   TLS verification: disabled")
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}
