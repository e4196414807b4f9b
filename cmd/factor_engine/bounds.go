package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/observability"
	"github.com/spf13/cobra"
)

var boundsCmd = &cobra.Command{
	Use:   "bounds <n>",
	Short: "Compute the equation-guided search window for a number",
	Long: `Solve the bound equation for n and print the candidate window, the Newton
crossover, and the recommended search strategy, without running any
factorization. With --check, a claimed factor is verified against every
equation constraint.`,
	Args: cobra.ExactArgs(1),
	RunE: runBounds,
}

var (
	boundsCheckX string
	boundsJSON   bool
)

func init() {
	boundsCmd.Flags().StringVar(&boundsCheckX, "check", "", "Verify this candidate factor against the equation constraints")
	boundsCmd.Flags().BoolVar(&boundsJSON, "json", false, "Print the analysis as JSON")

	rootCmd.AddCommand(boundsCmd)
}

func runBounds(_ *cobra.Command, args []string) error {
	n, err := numeric.ParseTarget(args[0])
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	solver, err := equation.NewSolver(n)
	if err != nil {
		return fmt.Errorf("equation analysis failed: %w", err)
	}

	bounds := solver.InitialBounds()

	var constraints *equation.Constraints
	if boundsCheckX != "" {
		x, err := numeric.ParseInt(boundsCheckX)
		if err != nil {
			return fmt.Errorf("invalid --check value: %w", err)
		}
		if !solver.VerifyFactor(x) {
			return fmt.Errorf("%s does not divide %s", boundsCheckX, n.String())
		}
		c, err := solver.VerifyAllConstraints(x)
		if err != nil {
			return fmt.Errorf("constraint verification failed: %w", err)
		}
		constraints = &c
	}

	if boundsJSON {
		return printBoundsJSON(n.String(), solver.Digits(), bounds, constraints)
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintBounds(n.String(), solver.Digits(), bounds)

	if constraints != nil {
		_, _ = fmt.Fprintf(os.Stdout, "Constraints for x=%s:\n", boundsCheckX)
		_, _ = fmt.Fprintf(os.Stdout, "  pnp_equals_xy:        %t\n", constraints.PnpEqualsXY)
		_, _ = fmt.Fprintf(os.Stdout, "  y_equation_match:     %t\n", constraints.YEquationMatch)
		_, _ = fmt.Fprintf(os.Stdout, "  x_is_smaller:         %t\n", constraints.XIsSmaller)
		if constraints.InverseApplicable {
			_, _ = fmt.Fprintf(os.Stdout, "  inverse_relationship: %t\n", constraints.InverseHolds)
		} else {
			_, _ = fmt.Fprintf(os.Stdout, "  inverse_relationship: not applicable\n")
		}
		_, _ = fmt.Fprintf(os.Stdout, "  all hold:             %t\n", constraints.AllHold())
	}

	return nil
}

func printBoundsJSON(n string, digits int, bounds equation.Bounds, constraints *equation.Constraints) error {
	out := struct {
		N            string                `json:"n"`
		Digits       int                   `json:"digits"`
		Lower        string                `json:"lower_bound"`
		Upper        string                `json:"upper_bound"`
		Crossover    string                `json:"crossover"`
		Iterations   int                   `json:"newton_iterations"`
		Converged    bool                  `json:"converged"`
		UsedFallback bool                  `json:"used_fallback"`
		Strategy     map[string]any        `json:"search_strategy"`
		Constraints  *equation.Constraints `json:"constraints,omitempty"`
		AllHold      *bool                 `json:"all_constraints_hold,omitempty"`
	}{
		N:            n,
		Digits:       digits,
		Lower:        bounds.Lower.String(),
		Upper:        bounds.Upper.String(),
		Crossover:    bounds.Root.String(),
		Iterations:   bounds.Iterations,
		Converged:    bounds.Converged,
		UsedFallback: bounds.UsedFallback,
		Strategy:     equation.SearchStrategy(bounds.Lower, bounds.Upper),
		Constraints:  constraints,
	}
	if constraints != nil {
		hold := constraints.AllHold()
		out.AllHold = &hold
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, string(data))
	return nil
}
