package config

import (
	"fmt"
	"os"
)

func Template() string {
	return serviceTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(serviceTemplate), 0o600)
}

const serviceTemplate = `name = "wirectl"
addr = ":9200"
schema_dir = "schemas"
cors_origins = ["http://localhost:3000"]
max_message_bytes = 8388608
max_field_length = 4194304
# tls_cert_file = "server.crt"
# tls_key_file = "server.key"

[log]
level = "info"
timestamp = true
no_color = false
`
