package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/inspect"
	"github.com/pulseguard/pulseguard/internal/rules"
)

var testLineCount int

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Dry-run rules against recent log lines",
	Long: `Test pulls the most recent lines from every configured file and container
source, evaluates each rule against them, and prints what would have
matched. Cooldowns and thresholds are not consulted and no alerts are sent.`,
	RunE: runTest,
}

func init() {
	testCmd.Flags().IntVarP(&testLineCount, "lines", "n", 50, "how many recent lines to read per source")
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Rules) == 0 {
		return fmt.Errorf("test: no rules configured in %s", configPath)
	}

	set, err := rules.CompileSet(cfg.Rules)
	if err != nil {
		return err
	}

	paths, err := cfg.ExpandFiles()
	if err != nil {
		return err
	}

	type target struct {
		kind event.SourceKind
		id   string
	}
	var targets []target
	for _, p := range paths {
		targets = append(targets, target{event.KindFile, p})
	}
	for _, c := range cfg.Inputs.Containers {
		targets = append(targets, target{event.KindContainer, c})
	}
	if len(targets) == 0 {
		return fmt.Errorf("test: no file or container sources configured in %s", configPath)
	}

	total := 0
	for _, tg := range targets {
		lines, err := inspect.Recent(cmd.Context(), tg.kind, tg.id, testLineCount)
		if err != nil {
			fmt.Printf("%s %s: %v\n", styleWarn.Render("skip"), tg.id, err)
			continue
		}

		matches := inspect.Scan(lines, set)
		fmt.Printf("%s %s (%d lines, %d matches)\n",
			styleName.Render("source"), tg.id, len(lines), len(matches))
		for _, m := range matches {
			fmt.Printf("  %s %s\n", styleName.Render(m.Rule), highlight(m))
		}
		total += len(matches)
	}

	if total == 0 {
		fmt.Println(styleDim.Render("no rule matched any recent line"))
	}
	return nil
}

// highlight renders the matched span in a distinct style inside the line.
func highlight(m inspect.Match) string {
	return m.Line[:m.Start] + styleMatch.Render(m.Line[m.Start:m.End]) + m.Line[m.End:]
}
