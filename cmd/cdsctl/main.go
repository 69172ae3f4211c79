// Command cdsctl runs medication safety checks from the command line and manages the
// reference database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
