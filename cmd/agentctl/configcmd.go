package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/hnpl/libapps/internal/config"
	"github.com/spf13/pflag"
)

func runConfig(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("config: want init or check")
	}
	switch args[0] {
	case "init":
		fs := pflag.NewFlagSet("config init", pflag.ContinueOnError)
		output := fs.StringP("output", "o", "agentwired.toml", "output path")
		force := fs.Bool("force", false, "overwrite an existing file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := config.WriteTemplate(*output, "agentwired", *force); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote agentwired config template to %s\n", *output)
		return nil
	case "check":
		if len(args) != 2 {
			return errors.New("config check: want one path")
		}
		cfg, err := config.Load(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: ok (listen=%s upstream=%s fixups=%d)\n",
			args[1], cfg.Listen, cfg.Upstream, len(cfg.VendorFixups))
		return nil
	default:
		return fmt.Errorf("config: unknown subcommand %q", args[0])
	}
}
