package main

import (
	"fmt"
	"os"

	"github.com/bsv-blockchain/fingerprint/cmd/fingerprint"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "fingerprint"

// Version & commit strings injected at build with -ldflags -X...
var (
	version string
	commit  string
)

func main() {
	if err := fingerprint.NewApp(progname, version, commit).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
