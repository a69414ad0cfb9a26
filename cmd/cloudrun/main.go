// Command cloudrun submits code files to the execution backend from a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudcompute/webclient/internal/backend"
	"github.com/cloudcompute/webclient/internal/batch"
	"github.com/cloudcompute/webclient/internal/logging"
	"github.com/cloudcompute/webclient/internal/models"
	"github.com/cloudcompute/webclient/internal/registration"
	"github.com/cloudcompute/webclient/internal/submission"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

var (
	headerColor = color.New(color.Bold)
	outputColor = color.New(color.FgGreen)
	errorColor  = color.New(color.FgRed)
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		errorColor.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "cloudrun",
		Usage: "run code files on the cloud compute backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend-url",
				Usage:   "base URL of the execution backend",
				Value:   "http://localhost:5000",
				Sources: cli.EnvVars("CLOUDRUN_BACKEND_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request timeout, 0 for none",
			},
		},
		Commands: []*cli.Command{
			submitCommand(out),
			batchCommand(out),
			registerCommand(out),
		},
	}
}

func apiKeyFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "api-key",
		Usage:   "API key sent with every submission",
		Sources: cli.EnvVars("CLOUDRUN_API_KEY"),
	}
}

func newClient(cmd *cli.Command) *backend.Client {
	base := strings.TrimRight(cmd.String("backend-url"), "/")
	return backend.New(backend.Options{
		ProcessURL:  base + "/process-code",
		RegisterURL: base + "/register",
		Timeout:     cmd.Duration("timeout"),
	}, logging.New(os.Stderr, cmd.String("log-level")))
}

func submitCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "submit one code file and print its output",
		ArgsUsage: "FILE",
		Flags:     []cli.Flag{apiKeyFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit(submission.MsgMissingFile, 2)
			}

			res, err := batch.Submit(ctx, newClient(cmd), cmd.String("api-key"), path)
			if err != nil {
				return cli.Exit(submission.ViewForError(err).Message, 1)
			}
			printResult(out, res)
			return nil
		},
	}
}

func batchCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "submit every code file of a folder",
		Flags: []cli.Flag{
			apiKeyFlag(),
			&cli.StringFlag{Name: "dir", Usage: "tasks folder", Value: "tasks"},
			&cli.StringFlag{Name: "ext", Usage: "file extension to pick", Value: ".py"},
			&cli.IntFlag{Name: "parallel", Usage: "maximum requests in flight, 1 runs sequentially", Value: 1},
			&cli.StringFlag{Name: "report", Usage: "write a YAML report to this file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := logging.New(os.Stderr, cmd.String("log-level"))
			report, err := batch.Run(ctx, newClient(cmd), batch.Options{
				Dir:      cmd.String("dir"),
				Ext:      cmd.String("ext"),
				APIKey:   cmd.String("api-key"),
				Parallel: int(cmd.Int("parallel")),
			}, logger)
			if err != nil {
				return err
			}

			for _, r := range report.Results {
				headerColor.Fprintf(out, "File: %s (%s)\n", r.File, r.Duration)
				if !r.OK {
					errorColor.Fprintln(out, r.Message)
					fmt.Fprintln(out)
					continue
				}
				printResult(out, &models.ExecutionResult{Output: r.Output, Error: r.Errors})
			}
			fmt.Fprintf(out, "%d succeeded, %d failed\n", report.Succeeded, report.Failed)

			if path := cmd.String("report"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating report: %w", err)
				}
				defer f.Close()
				if err := report.WriteYAML(f); err != nil {
					return err
				}
			}
			if report.Failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func registerCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "register a user and print the API key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var modal registration.Modal
			req, ok := modal.Submit(cmd.String("username"), cmd.String("email"))
			if !ok {
				return cli.Exit("username and email must not be empty", 2)
			}

			resp, err := newClient(cmd).Register(ctx, req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("registration failed: %v", err), 1)
			}
			if resp.Error != "" {
				return cli.Exit(resp.Error, 1)
			}

			key := req.APIKey
			if issued := strings.TrimSpace(resp.APIKey); issued != "" {
				key = issued
			}
			headerColor.Fprint(out, "API key: ")
			outputColor.Fprintln(out, key)
			return nil
		},
	}
}

func printResult(out io.Writer, res *models.ExecutionResult) {
	headerColor.Fprintln(out, "Console Output:")
	outputColor.Fprintln(out, res.Output)
	if submission.HasErrors(res) {
		headerColor.Fprintln(out, "Errors:")
		errorColor.Fprintln(out, res.Error)
	}
	fmt.Fprintln(out)
}
