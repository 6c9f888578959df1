package main

import (
	"context"
	"flag"
	"github.com/lefinal/confcomp-server/app"
	"github.com/lefinal/confcomp-server/errors"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// envConfigPath is the environment variable for the config path if not set via
// flag.
const envConfigPath = "CONFCOMP_CONFIG"

const defaultConfigPath = "config.yml"

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()
	if *configPath == "" {
		*configPath = os.Getenv(envConfigPath)
	}
	if *configPath == "" {
		*configPath = defaultConfigPath
	}
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(errors.Prettify(err))
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = app.NewApp(config).Boot(ctx)
	if err != nil {
		cancel()
		log.Fatal(errors.Prettify(err))
	}
}
