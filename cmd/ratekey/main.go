// RateKey - peptide turnover rate-constant pipeline
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/RateKey/cmd/ratekey/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
