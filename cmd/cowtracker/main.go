package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rshade/cowtracker/internal/api"
	"github.com/rshade/cowtracker/internal/cli"
	"github.com/rshade/cowtracker/internal/config"
	"github.com/rshade/cowtracker/pkg/version"
)

// Exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitConfig       = 2
	exitUnauthorized = 3
)

func run() error {
	return cli.NewRootCmd(version.GetVersion()).Execute()
}

// exitCode maps an error returned by run to a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalidConfig):
		return exitConfig
	case errors.Is(err, api.ErrUnauthorized):
		return exitUnauthorized
	default:
		return exitError
	}
}

func main() {
	err := run()
	if errors.Is(err, api.ErrUnauthorized) {
		fmt.Fprintln(os.Stderr, "Hint: run 'cowtracker login --token <token>' to authenticate.")
	}
	os.Exit(exitCode(err))
}
