package main

import (
	"log"

	"github.com/danmuck/articgate/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	kind := pflag.String("kind", "daemon", "config kind: daemon|setup")
	output := pflag.String("output", "", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	path := *output
	if *validate {
		path = *input
	}
	if path == "" {
		path = defaultPath(*kind)
	}

	if *validate {
		var err error
		switch *kind {
		case "daemon":
			_, err = config.LoadDaemon(path)
		case "setup":
			_, err = config.LoadSetup(path)
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, path)
}

func defaultPath(kind string) string {
	switch kind {
	case "daemon":
		return "cmd/articd/config.toml"
	case "setup":
		return "cmd/articsetup/config.toml"
	}
	log.Fatalf("unknown kind: %s", kind)
	return ""
}
