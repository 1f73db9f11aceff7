package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	crmcmd "github.com/rolodexhq/rolodex/internal/cmd/crm"
)

// main starts the CRM MCP server on stdio.
func main() {
	cfg, err := crmcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CRM] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := crmcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve CRM: %v", err)
	}
}
