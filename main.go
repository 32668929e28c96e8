package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NPRA/geofence-converter/app"
)

// Exit status for unusable configuration, nothing was started.
const exitConfig = 2

func main() {
	err := app.Run(os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	if errors.Cause(err) == context.Canceled {
		logrus.Debugln(errors.Wrap(err, "ignore error since context is cancelled"))
		return
	}
	var configErr *app.ConfigError
	if errors.As(err, &configErr) {
		logrus.Error(err)
		os.Exit(exitConfig)
	}
	logrus.Fatal(err)
}
