// lakemill builds a layered analytical warehouse from a fixed set of
// delimited source files.
package main

import (
	"os"

	"github.com/lakemill/lakemill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
