package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/spf13/cobra"
)

var isprimeCmd = &cobra.Command{
	Use:   "isprime <n>",
	Short: "Test a number for primality",
	Long: `Run the BPSW primality test on n and report the verdict. With --certificate,
a primality proof (trial division or Pocklington where possible) is emitted
as JSON alongside the verdict.`,
	Args: cobra.ExactArgs(1),
	RunE: runIsprime,
}

var (
	isprimeCertificate bool
	isprimeJSON        bool
)

func init() {
	isprimeCmd.Flags().BoolVar(&isprimeCertificate, "certificate", false, "Emit a primality certificate for primes")
	isprimeCmd.Flags().BoolVar(&isprimeJSON, "json", false, "Print the verdict as JSON")

	rootCmd.AddCommand(isprimeCmd)
}

func runIsprime(_ *cobra.Command, args []string) error {
	n, err := numeric.ParseTarget(args[0])
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	prime := numeric.IsPrimeBPSW(n)

	var cert *numeric.Certificate
	if prime && isprimeCertificate {
		cert = numeric.GenerateCertificate(n)
	}

	if isprimeJSON {
		out := struct {
			N           string               `json:"n"`
			Digits      int                  `json:"digits"`
			IsPrime     bool                 `json:"is_prime"`
			Certificate *numeric.Certificate `json:"certificate,omitempty"`
		}{
			N:           n.String(),
			Digits:      numeric.Digits(n),
			IsPrime:     prime,
			Certificate: cert,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, _ = fmt.Fprintln(os.Stdout, string(data))
		return nil
	}

	if prime {
		_, _ = fmt.Fprintf(os.Stdout, "%s is prime (%d digits, BPSW)\n", n.String(), numeric.Digits(n))
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "%s is composite (%d digits)\n", n.String(), numeric.Digits(n))
	}

	if cert != nil {
		data, err := cert.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Certificate (%s, verified=%t):\n%s\n", cert.Type, cert.Verified, string(data))
	}

	return nil
}
