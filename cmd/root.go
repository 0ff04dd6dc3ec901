package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const usage = `boq-estimator turns engineering drawings into take-off and BOQ text.

Usage:
  boq-estimator serve [flags]
  boq-estimator templates

Commands:
  serve      Start the HTTP server
  templates  List the built-in prompt templates

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "templates":
		return listTemplates(os.Stdout)
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
