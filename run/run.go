package run

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/relex/gotils/logger"

	"github.com/logtide/logtide/defs"
)

// Run runs the server until stopped by signals
func Run(configFile string) {
	config := LoadConfig(configFile)

	loader, loaderErr := NewLoader(config, "logtide_")
	if loaderErr != nil {
		logger.Fatal(loaderErr)
	}

	address, launchErr := loader.Launch()
	if launchErr != nil {
		logger.Fatalf("failed to bind port %d: %s", config.Port, launchErr.Error())
	}

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")
	runLogger.Infof("accepting log clients on %s", address)

	// wait for shutdown signal
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		s := <-sigChan
		runLogger.Infof("received %s, shutting down", s)
	}

	loader.Shutdown()
	runLogger.Info("clean exit")
}
