package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon", "articd":
		return daemonTemplate, nil
	case "setup", "articsetup":
		return setupTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `listen_addr = ":5543"
admin_enabled = true
admin_addr = "127.0.0.1:5544"
# admin_token = "change-me"
cors_origins = ["http://localhost:3000"]
host_root = "host"
# nim_header = "nim_header.bin"
idle_timeout = "0s"
write_timeout = "15s"
max_result_bytes = 25165824
`

const setupTemplate = `sd_root = "host/sdmc"
plugin_path = "/3ds/AzaharArticSetup/AzaharArticSetup.3gx"
package = "AzaharArticSetup.3gx.pkg"
loader_state = "plgldr.cbor"
`
