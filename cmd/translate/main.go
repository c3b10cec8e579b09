// Command translate is the toolchain's front end: it reads Forth-flavored
// source and writes the assembled code and data images plus their hex
// dumps.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"stackvm32/internal/translate"
)

func main() {
	app := &cli.App{
		Name:      "translate",
		Usage:     "assemble Forth-flavored source into a code and data image",
		ArgsUsage: "<source> <code.bin> <data.bin>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dump",
				Usage: "re-decode the written images and print them back",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit("usage: translate <source> <code.bin> <data.bin>", 1)
	}
	sourcePath := c.Args().Get(0)
	codePath := c.Args().Get(1)
	dataPath := c.Args().Get(2)

	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return cli.Exit(fmt.Errorf("read %s: %w", sourcePath, err), 1)
	}

	_, prog, data, err := translate.Translate(string(src))
	if err != nil {
		return cli.Exit(err, 1)
	}

	if err := translate.WriteArtifacts(prog, data, codePath, dataPath); err != nil {
		return cli.Exit(err, 1)
	}

	if c.Bool("dump") {
		out, err := translate.ReadAndDump(codePath, dataPath)
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Print(out)
	}

	return nil
}
