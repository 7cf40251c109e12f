package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common/errors"
	"github.com/scootdev/ensemble/runmodel/cli"
)

// Runs an ensemble of realizations; see "ensemble run --help".
func main() {
	if err := cli.NewCLIClient().Exec(); err != nil {
		log.Error(err)
		os.Exit(int(errors.ExitCodeOf(err)))
	}
}
