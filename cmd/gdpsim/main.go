// Command gdpsim projects long-horizon GDP growth from historical data.
//
//	gdpsim project --config gdpsim.yaml
//	gdpsim ensemble
//	gdpsim select-order --max-p 3 --max-q 2
//	gdpsim decode
//	gdpsim significance --lags 4
package main

import (
	"fmt"
	"os"

	"github.com/asharahmed/us-econ-growth/internal/cli"
)

func main() {
	c := cli.NewCLI(cli.Options{Output: os.Stdout, ErrOut: os.Stderr})

	if err := c.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
