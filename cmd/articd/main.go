// articd serves the remote-procedure gateway over TCP, backed by a host
// directory.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "articd: %v\n", err)
		os.Exit(1)
	}
}
