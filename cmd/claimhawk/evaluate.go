package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/rules"
	"github.com/opensource-finance/claimhawk/internal/simulation"
)

type evaluateOutput struct {
	Status     domain.ClaimStatus       `json:"status"`
	Simulation *domain.SimulationResult `json:"simulation"`
}

func evaluateCmd() *cobra.Command {
	var (
		file      string
		policy    string
		payoutPol string
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a claim JSON file offline and print the result",
		Long: `Evaluate a claim without a database.

Examples:
  claimhawk evaluate --file claim.json
  claimhawk evaluate --file claim.json --policy weighted-v1
  cat claim.json | claimhawk evaluate --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			if policy != "" {
				cfg.Scoring.Policy = policy
			}
			if payoutPol != "" {
				cfg.Scoring.Payout = payoutPol
			}
			if rulesFile != "" {
				cfg.Scoring.RulesFile = rulesFile
			}

			claim, err := readClaim(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			var engine *rules.Engine
			if cfg.Scoring.RulesFile != "" {
				engine, err = rules.NewEngine(nil, cfg.Scoring.VelocityWindowSecs, 10)
				if err != nil {
					return err
				}
				defer engine.Close()
				pack, err := rules.LoadPackFile(cfg.Scoring.RulesFile)
				if err != nil {
					return err
				}
				if err := engine.LoadRules(pack.Rules); err != nil {
					return err
				}
			}

			sim, err := newSimulator(cfg.Scoring, engine)
			if err != nil {
				return err
			}

			result := sim.Evaluate(cmd.Context(), claim)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(evaluateOutput{
				Status:     simulation.NextStatus(result),
				Simulation: result,
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "claim JSON file, or - for stdin")
	cmd.Flags().StringVarP(&policy, "policy", "p", "", "scoring policy (points-v1, weighted-v1)")
	cmd.Flags().StringVar(&payoutPol, "payout", "", "payout policy (deduction-v1, coverage-v1)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule pack YAML applied as custom rules")
	cmd.MarkFlagRequired("file")

	return cmd
}

func readClaim(stdin io.Reader, path string) (*domain.Claim, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open claim: %w", err)
		}
		defer f.Close()
		r = f
	}

	var claim domain.Claim
	if err := json.NewDecoder(r).Decode(&claim); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	if claim.Type != "" && !claim.Type.Valid() {
		return nil, errors.New("unsupported claim type " + string(claim.Type))
	}
	return &claim, nil
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with rule packs",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Compile every rule in a rule pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			pack, err := rules.LoadPackFile(file)
			if err != nil {
				return err
			}
			engine, err := rules.NewEngine(nil, 0, 1)
			if err != nil {
				return err
			}
			defer engine.Close()

			out := cmd.OutOrStdout()
			errs := engine.Validate(pack)
			for _, err := range errs {
				fmt.Fprintln(out, "invalid:", err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d rules invalid", len(errs), len(pack.Rules))
			}
			fmt.Fprintf(out, "%d rules ok\n", len(pack.Rules))
			return nil
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "rule pack YAML file")
	validate.MarkFlagRequired("file")

	cmd.AddCommand(validate)
	return cmd
}
