package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

const defaultServer = "http://127.0.0.1:8080"

// extensionLanguages guesses --lang from the file name
var extensionLanguages = map[string]string{
	".sh":  "bash",
	".py":  "python",
	".js":  "node",
	".mjs": "node",
	".ts":  "typescript",
}

func main() {
	cmd := &cli.Command{
		Name:  "execctl",
		Usage: "run code on an execbox server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   defaultServer,
				Usage:   "execbox server URL",
				Sources: cli.EnvVars("EXECBOX_SERVER"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "execute a file, or stdin when FILE is -",
				ArgsUsage: "FILE|-",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "lang",
						Aliases: []string{"l"},
						Usage:   "language or alias, guessed from the file extension when omitted",
					},
				},
				Action: runAction,
			},
			{
				Name:   "languages",
				Usage:  "list the runtimes the server accepts",
				Action: languagesAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.Exit("usage: execctl run [--lang L] FILE|-", 2)
	}
	path := cmd.Args().First()

	code, err := readSource(path)
	if err != nil {
		return err
	}

	lang := cmd.String("lang")
	if lang == "" {
		lang = extensionLanguages[strings.ToLower(filepath.Ext(path))]
	}
	if lang == "" {
		return cli.Exit("cannot guess the language of "+path+", pass --lang", 2)
	}

	client := newClient(cmd.String("server"))
	exitCode, err := client.Run(ctx, lang, code, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return cli.Exit("", exitCode)
	}
	return nil
}

func readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // reading the file the user named is the point
	}
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return string(data), nil
}

func languagesAction(ctx context.Context, cmd *cli.Command) error {
	runtimes, err := newClient(cmd.String("server")).Languages(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOMMAND\tEXTENSION\tALIASES")
	for _, rt := range runtimes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", color.CyanString(rt.Name), rt.Command, rt.Extension, strings.Join(rt.Aliases, ", "))
	}
	return tw.Flush()
}
