// articsetup packages the gateway plugin image, installs it onto an SD card
// tree and arms the plugin loader to launch it.
//
// Usage:
//
//	articsetup pack --image plugin.3gx [--package out.pkg]
//	articsetup install [--config articsetup.toml] [--sd-root DIR] [--skip-launch]
//	articsetup loader-init --loader-version 1.0.2 [--loader-state FILE]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "articsetup: %v\n", err)
		os.Exit(1)
	}
}
