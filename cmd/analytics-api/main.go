package main

import (
	"flag"
	"fmt"
	"os"

	"example.com/analytics/internal/app"
	"example.com/analytics/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	app.New(cfg).Run()
}
