package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Lookup resolves a secret from KEY_FILE (Docker/Kubernetes mounted secret) or KEY.
// The file variant wins when both are set.
func Lookup(envKey string) (string, bool, error) {
	if filePath := os.Getenv(envKey + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", false, fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), true, nil
	}

	if value, ok := os.LookupEnv(envKey); ok && value != "" {
		return value, true, nil
	}

	return "", false, nil
}

// GetOptionalSecret resolves a secret, falling back to defaultValue when it is unset
// or its file cannot be read
func GetOptionalSecret(envKey string, defaultValue string) string {
	value, ok, err := Lookup(envKey)
	if err != nil || !ok {
		return defaultValue
	}
	return value
}

// RedactDSN masks the password of a go-sql-driver style DSN (user:pass@tcp(host)/db)
// so it can be logged
func RedactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return creds[:colon] + ":****" + dsn[at:]
}
