// Command gwadmin runs administrative jobs against the API management
// platform: traffic exports, bulk deletions and throttled listings.
package main

import (
	"fmt"
	"os"

	"github.com/perimetra/gwadmin/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
