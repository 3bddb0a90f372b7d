package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hnpl/libapps/internal/card"
	"github.com/hnpl/libapps/internal/config"
	"github.com/hnpl/libapps/internal/curve"
	"github.com/hnpl/libapps/internal/oid"
	"github.com/spf13/pflag"
)

func decodeFlags(name string) (*pflag.FlagSet, *string, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	label := fs.StringP("label", "l", "", "reader label, enables vendor fixups")
	cfgPath := fs.StringP("config", "c", "", "agentwired config supplying extra vendor fixups")
	return fs, label, cfgPath
}

// parseHex accepts "2b0601", "2B 06 01" and "2b:06:01".
func parseHex(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("missing hex bytes")
	}
	s := strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(strings.Join(args, ""))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex: %w", err)
	}
	return b, nil
}

// fixupTable builds the default vendor fixups plus any configured ones.
func fixupTable(cfgPath string) (*oid.Table, error) {
	table, err := oid.NewTable(oid.Fixups()...)
	if err != nil {
		return nil, err
	}
	if cfgPath == "" {
		return table, nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	fixups, err := cfg.Fixups()
	if err != nil {
		return nil, err
	}
	for _, f := range fixups {
		if err := table.Register(f); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func runOID(args []string, stdout io.Writer) error {
	fs, label, cfgPath := decodeFlags("oid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := parseHex(fs.Args())
	if err != nil {
		return err
	}
	table, err := fixupTable(*cfgPath)
	if err != nil {
		return err
	}

	dotted, ok := table.DecodeCurve(raw, *label)
	if !ok {
		return fmt.Errorf("%w: % x", oid.ErrInvalidOID, raw)
	}
	if c, known := curve.ByOID(dotted); known {
		fmt.Fprintf(stdout, "%s\t%s\n", dotted, c.Name)
		return nil
	}
	fmt.Fprintln(stdout, dotted)
	return nil
}

func runCard(args []string, stdout io.Writer) error {
	fs, label, cfgPath := decodeFlags("card")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := parseHex(fs.Args())
	if err != nil {
		return err
	}
	if *cfgPath != "" {
		table, err := fixupTable(*cfgPath)
		if err != nil {
			return err
		}
		for _, f := range table.Fixups() {
			if err := oid.Register(f); err != nil {
				return err
			}
		}
	}

	attrs, err := card.ParseAlgorithmAttributes(raw, *label)
	if err != nil {
		return err
	}
	keyType, err := attrs.SSHKeyType()
	if err != nil {
		keyType = "-"
	}
	switch attrs.Algorithm {
	case card.AlgorithmRSA:
		fmt.Fprintf(stdout, "%s\t%d bits\t%s\n", attrs.Algorithm, attrs.ModulusBits, keyType)
	default:
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", attrs.Algorithm, attrs.Curve.Name, keyType)
	}
	return nil
}
