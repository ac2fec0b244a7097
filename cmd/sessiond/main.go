// Package main is the entry point for sessiond.
//
//	@title			Session Gateway API
//	@version		1.0
//	@description	Session issuance, verification and revocation for the clinic application.
//	@BasePath		/
package main

import (
	"context"
	"os"

	"github.com/medisync/session-gateway/internal/cli"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(context.Background()); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
