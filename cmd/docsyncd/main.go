// Command docsyncd runs the document sync daemon in the foreground. It is a
// thin wrapper over the same runtime loop the CLI launches with
// `docsync daemon run`, intended for service managers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"docsync/internal/config"
	"docsync/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
