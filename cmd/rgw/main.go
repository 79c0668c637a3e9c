/*
This command provides an executable version of the gateway with the
bundled plugins.

For the list of command line options, run:

	rgw -help

The options can be provided also in a YAML file, passed with the
-config-file flag.
*/
package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw"
	"github.com/rgwgateway/rgw/config"
)

var (
	version string
	commit  string
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	if cfg.PrintVersion {
		fmt.Printf("rgw version %s (commit: %s)\n", version, commit)
		return
	}

	log.SetLevel(cfg.ApplicationLogLevel)
	if err := rgw.Run(cfg.ToOptions()); err != nil {
		log.Fatal(err)
	}
}
