package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/agentmem/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and validating agentmem.yaml.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate agentmem.yaml",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Never print the bearer token.
	shown := *cfg
	if shown.Server.Token != "" {
		shown.Server.Token = "********"
	}
	out, err := shown.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, headerStyle.Render("Current Configuration:"))
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintln(w, string(out))
	if dir := cfg.Dir(); dir != "" {
		fmt.Fprintln(w, mutedStyle.Render("Config directory: "+dir))
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := cfg.StoreConfig(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "agentmem.yaml: OK")
	return nil
}
