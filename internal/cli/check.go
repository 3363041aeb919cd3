package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/health"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every configured health check once",
	Long: `Check runs a single probe of every configured health check and prints the
result. No state is kept and no alerts are sent; the exit code is non-zero
when any probe fails.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Checks) == 0 {
		return fmt.Errorf("check: no checks configured in %s", configPath)
	}

	results, err := health.ProbeAll(cmd.Context(), cfg.Checks)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err == nil {
			fmt.Printf("%s %s %s\n",
				styleOK.Render("up  "), styleName.Render(r.Name), styleDim.Render(r.URL))
			continue
		}
		failed++
		fmt.Printf("%s %s %s %v\n",
			styleBad.Render("down"), styleName.Render(r.Name), styleDim.Render(r.URL), r.Err)
	}

	if failed > 0 {
		return fmt.Errorf("check: %d of %d checks failed", failed, len(results))
	}
	return nil
}
