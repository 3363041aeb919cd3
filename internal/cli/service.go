package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Install and start the background service",
	Long: `Start registers pulseguard with the OS service manager (systemd on Linux,
launchd on macOS) and starts it. The service runs "pulseguard watch" with
the config file given by --config, resolved to an absolute path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Fail here, with a readable message, rather than in the
		// service manager's logs.
		if _, err := config.Load(configPath); err != nil {
			return err
		}
		if err := daemon.ConfigReadable(configPath); err != nil {
			return err
		}

		mgr, err := daemon.New()
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return err
		}
		if err := mgr.Install(abs); err != nil {
			return err
		}
		fmt.Printf("%s service installed and started\n", styleOK.Render("ok"))
		fmt.Println(styleDim.Render("  config: " + abs))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := daemon.New()
		if err != nil {
			return err
		}
		if err := mgr.Stop(); err != nil {
			return err
		}
		fmt.Printf("%s service stopped\n", styleOK.Render("ok"))
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the background service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := daemon.New()
		if err != nil {
			return err
		}
		if err := mgr.Stop(); err != nil {
			fmt.Println(styleWarn.Render("service was not running"))
		}
		if err := mgr.Start(); err != nil {
			return err
		}
		fmt.Printf("%s service restarted\n", styleOK.Render("ok"))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the background service state",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := daemon.New()
		if err != nil {
			return err
		}
		state, err := mgr.Status()
		if err != nil {
			return err
		}
		if state == "active" {
			fmt.Printf("%s %s\n", styleOK.Render(state), daemon.ServiceName)
		} else {
			fmt.Printf("%s %s\n", styleBad.Render(state), daemon.ServiceName)
		}
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the background service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := daemon.New()
		if err != nil {
			return err
		}
		if err := mgr.Uninstall(); err != nil {
			return err
		}
		fmt.Printf("%s service removed\n", styleOK.Render("ok"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, statusCmd, uninstallCmd)
}
