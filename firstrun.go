// Package firstrun implements a container entrypoint that performs a one-time
// database initialization on the first container start, persisted through a
// marker file, and then hands the process over to an interactive shell.
package firstrun

import (
	"github.com/streamingfast/logging"
)

var zlog, _ = logging.PackageLogger("firstrun", "github.com/streamingfast/firstrun")
