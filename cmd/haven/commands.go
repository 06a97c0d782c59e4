package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/havenchat/haven/internal/api"
	"github.com/havenchat/haven/internal/config"
)

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect stored user profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/users/"+args[0]+"/profile")
		if err != nil {
			return err
		}

		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileOverviewCmd = &cobra.Command{
	Use:   "overview <user-id>",
	Short: "Show a user's profile with journal stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/users/"+args[0]+"/overview")
		if err != nil {
			return err
		}

		var overview any
		if err := decodeJSON(resp, &overview); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(overview)
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileOverviewCmd)
}

// --- crisis ---

var crisisCmd = &cobra.Command{
	Use:   "crisis",
	Short: "Show crisis hotlines and emergency contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		printCrisisResources()
		return nil
	},
}

// printCrisisResources renders the built-in contact list. It never touches
// the server or a model; crisis information must work when nothing else does.
func printCrisisResources() {
	fmt.Println(colorize(colorBold, "Crisis Resources - Available 24/7:"))
	fmt.Println()
	for _, c := range api.CrisisResources {
		fmt.Printf("%s\n", colorize(colorBold, c.Name))
		if c.Phone != "" {
			fmt.Printf("  Phone: %s\n", c.Phone)
		}
		if c.Email != "" {
			fmt.Printf("  Email: %s\n", c.Email)
		}
		if c.URL != "" {
			fmt.Printf("  Web: %s\n", c.URL)
		}
		fmt.Printf("  %s\n\n", c.Description)
	}
	fmt.Println("Remember: you are not alone, and help is always available.")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
