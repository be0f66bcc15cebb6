package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/cli"
)

func main() {
	logger, err := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cli.NewRootCmd(cli.ConfigOpener(logger)).Execute(); err != nil {
		os.Exit(1)
	}
}
