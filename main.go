package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile  = flag.String("config", "reskin.yaml", "Path to service configuration file")
	httpMode    = flag.Bool("http", false, "Serve the HTTP API and websocket viewer hub")
	mqttMode    = flag.Bool("mqtt", false, "Relay session events and commands over MQTT")
	httpPort    = flag.Int("http-port", 0, "HTTP server port (overrides config)")
	introspect  = flag.String("introspect", "", "Load a model URL, print its materials, meshes and variants, and exit")
	category    = flag.String("category", "", "With --introspect, paint the model with this category's default presets")
	swatches    = flag.String("swatches", "", "Render the swatch sheet of a category to --output and exit")
	outputFile  = flag.String("output", "swatches.svg", "Output file for --swatches (.svg or .png)")
	checkConfig = flag.Bool("check-config", false, "Validate materials and catalog, print a summary and exit")
	dataDir     = flag.String("data-dir", "", "Directory serving /models and /maps (overrides config)")
)

func main() {
	flag.Parse()
	fmt.Printf("reskin version: %s\n", Version)
	loadDotEnv()

	cfg, err := LoadServiceConfig(*configFile)
	if errors.Is(err, errConfigNotFound) && !flagSet("config") {
		log.Printf("No %s found, using defaults", *configFile)
		cfg = DefaultServiceConfig()
		cfg.applyEnv()
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *httpPort != 0 {
		cfg.HTTP.Port = *httpPort
	}
	if *dataDir != "" {
		cfg.Assets.Dir = *dataDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}

	switch {
	case *checkConfig:
		err = app.RunCheckConfig(os.Stdout)
	case *introspect != "":
		err = app.RunIntrospect(ctx, *introspect, *category, os.Stdout)
	case *swatches != "":
		err = app.RunSwatches(*swatches, *outputFile)
		if err == nil {
			fmt.Printf("Wrote %s\n", *outputFile)
		}
	case *httpMode || *mqttMode:
		err = app.RunService(ctx, *httpMode, *mqttMode)
	default:
		fmt.Println("Use --http to serve the configurator API")
		fmt.Println("Use --mqtt to relay session events over MQTT")
		fmt.Println("Use --http --mqtt to run both together")
		fmt.Println("Use --introspect=URL [--category=NAME] to inspect a model")
		fmt.Println("Use --swatches=CATEGORY --output=FILE to render a swatch sheet")
		fmt.Println("Use --check-config to validate materials and catalog")
		return
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
