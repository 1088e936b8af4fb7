package cmd

import (
	"context"

	"github.com/relex/gotils/logger"

	"github.com/logtide/logtide/defs"
	"github.com/logtide/logtide/run"
	"github.com/logtide/logtide/util"
)

type runCommandState struct {
	Config      string `help:"Configuration file path (properties or yaml); missing file falls back to defaults"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information"`
	TestMode    bool   `help:"Use test mode timings: short flush intervals and stats period"`
}

var runCmd runCommandState = runCommandState{
	Config:      "server.properties",
	MetricsAddr: ":9335",
	TestMode:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}

	msrv := util.LaunchMetricsListener(cmd.MetricsAddr)

	run.Run(cmd.Config)

	if err := msrv.Shutdown(context.Background()); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}
