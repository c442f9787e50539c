package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/avelar/fxpilot/internal/config"
	"github.com/avelar/fxpilot/internal/workflow"
)

// runInteractive loops prompt -> analyze -> render until the user quits.
func runInteractive(ctx context.Context, cfg *config.Config) error {
	fmt.Println("FxPilot interactive mode. Ctrl+C to quit.")
	fmt.Println()

	for {
		query, err := promptForQuery()
		if err != nil {
			return interruptToNil(err)
		}

		balance, err := promptForBalance(cfg.AccountBalance)
		if err != nil {
			return interruptToNil(err)
		}

		opts := &workflow.Options{}
		if balance != cfg.AccountBalance {
			opts.AccountBalance = balance
		}

		if err := runAnalysis(ctx, cfg, query, opts, true); err != nil {
			fmt.Printf("analysis failed: %v\n", err)
		}

		again, err := promptContinue()
		if err != nil {
			return interruptToNil(err)
		}
		if !again {
			return nil
		}
		fmt.Println()
	}
}

// interruptToNil treats Ctrl+C at a prompt as a normal exit.
func interruptToNil(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return nil
	}
	return err
}
