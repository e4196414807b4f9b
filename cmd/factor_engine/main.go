// Package main provides the factor engine command line interface and HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "factor_engine",
	Short: "Semiprime factorization engine",
	Long:  "factor_engine factors semiprimes through a staged pipeline (trial division, Pollard rho, ECM, equation-guided search) with pausable jobs, batch prescans, and a REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
