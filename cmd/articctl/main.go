// articctl calls a running gateway from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "articctl: %v\n", err)
		os.Exit(1)
	}
}
