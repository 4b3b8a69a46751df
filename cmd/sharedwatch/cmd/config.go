package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/sharedwatch/configs"
	"github.com/Aman-CERP/sharedwatch/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Inspect and create sharedwatch configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/sharedwatch/config.yaml)
  3. Project config (.sharedwatch.yaml)
  4. Environment variables (SHAREDWATCH_*)`,
		Example: `  # Show effective configuration
  sharedwatch config show

  # Write a project config with the defaults
  sharedwatch config init

  # Write the user config, backing up an existing one
  sharedwatch config init --user --force`,
	}

	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigInitCmd(a))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd(a))

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, config files and environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.jsonOutput {
				return a.writer(cmd).Value(a.cfg)
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		user  bool
		force bool
		full  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write a commented .sharedwatch.yaml in the project directory, or the user
config with --user. With --full every setting is written instead.

An existing file is kept unless --force is given; an existing user config is
backed up before it is replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, a, user, force, full)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&full, "full", false, "Write every setting without comments")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup",
		Long:  `Restore the user config from the given backup, or from the newest one.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := a.writer(cmd)

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					out.Warning("No user config backups found")
					return nil
				}
				path = backups[0]
			}

			if err := config.RestoreUserConfig(path); err != nil {
				return err
			}
			out.Successf("Restored %s", config.GetUserConfigPath())
			out.Statusf("💾", "From: %s", path)
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, a *app, user, force, full bool) error {
	out := a.writer(cmd)

	path := filepath.Join(a.configDir, config.ProjectFileYAML)
	if user {
		path = config.GetUserConfigPath()
	}
	existing := existingConfig(a, user)
	if existing != "" {
		if !force {
			out.Warningf("Configuration already exists: %s", existing)
			out.Status("💡", "Use --force to overwrite it")
			return nil
		}
		path = existing
	}

	if user && config.UserConfigExists() {
		backup, err := config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := writeConfigFile(path, user, full); err != nil {
		return err
	}
	out.Successf("Created %s", path)
	return nil
}

func writeConfigFile(path string, user, full bool) error {
	if full {
		return config.NewConfig().WriteYAML(path)
	}
	template := configs.ProjectConfigTemplate
	if user {
		template = configs.UserConfigTemplate
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func existingConfig(a *app, user bool) string {
	if user {
		if config.UserConfigExists() {
			return config.GetUserConfigPath()
		}
		return ""
	}
	return config.FindProjectConfig(a.configDir)
}
