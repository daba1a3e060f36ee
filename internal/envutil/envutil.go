package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment
const EnvVar = "SOPORIFY_ENV"

// IsDev reports whether SOPORIFY_ENV is development. Error pages then show
// the underlying error, and cookies are not marked Secure.
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
