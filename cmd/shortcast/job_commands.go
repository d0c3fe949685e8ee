package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shortcast/internal/api"
	"shortcast/internal/client"
	"shortcast/internal/config"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		scriptFile string
		scriptText string
		voice      string
		speed      float64
		videoType  string
		at         string
		watch      bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a script for generation and scheduled publishing",
		Example: `  shortcast submit --file market.txt --at 2030-01-02T09:00:00Z
  echo "Rates rose today." | shortcast submit --file - --type regular --at "2030-01-02 09:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readScript(cmd.InOrStdin(), scriptFile, scriptText)
			if err != nil {
				return err
			}
			if strings.TrimSpace(at) == "" {
				return errors.New("--at is required (RFC3339, or local form read as UTC)")
			}
			req := api.SubmitRequest{
				MarketScript:      text,
				Voice:             strings.TrimSpace(voice),
				VideoType:         strings.TrimSpace(videoType),
				ScheduledDatetime: strings.TrimSpace(at),
			}
			if cmd.Flags().Changed("speed") {
				req.Speed = &speed
			}

			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %s queued (%d videos)\n", resp.JobID, resp.EstimatedVideos)
				if !watch {
					fmt.Fprintf(out, "Check progress with `shortcast status %s`\n", resp.JobID)
					return nil
				}
				last, err := watchJob(cmd.Context(), c, out, resp.JobID, shouldColorize(out))
				if err != nil {
					return err
				}
				if last.Status == "failed" {
					return fmt.Errorf("job %s failed: %s", resp.JobID, last.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&scriptFile, "file", "f", "", "Read the script from a file (- for stdin)")
	cmd.Flags().StringVarP(&scriptText, "text", "t", "", "Script text")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice (defaults to scheduling.default_voice)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Speech speed between 0.25 and 4.0")
	cmd.Flags().StringVar(&videoType, "type", "", "Video type: short or regular")
	cmd.Flags().StringVar(&at, "at", "", "Publish time of the first video")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job until it finishes")
	addJSONFlag(cmd, &asJSON)
	cmd.MarkFlagsMutuallyExclusive("file", "text")
	cmd.MarkFlagsMutuallyExclusive("watch", "json")
	return cmd
}

func readScript(stdin io.Reader, file, text string) (string, error) {
	switch {
	case strings.TrimSpace(file) == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read script from stdin: %w", err)
		}
		return string(data), nil
	case strings.TrimSpace(file) != "":
		path, err := config.ExpandPath(strings.TrimSpace(file))
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return string(data), nil
	case text != "":
		return text, nil
	default:
		return "", errors.New("provide the script with --file or --text")
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON bool
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(c *client.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if watch {
					if _, err := watchJob(cmd.Context(), c, out, id, colorize); err != nil {
						return err
					}
				}
				view, err := c.Status(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, view)
				}
				renderJobDetail(out, *view, colorize)
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress until the job finishes")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				views, err := c.List(cmd.Context(), statuses, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: views})
				}
				out := cmd.OutOrStdout()
				renderJobList(out, views, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum jobs to show (server default 50)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				view, err := c.Cancel(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if view.Status == "cancelled" {
					fmt.Fprintf(out, "Job %s cancelled\n", view.JobID)
					return nil
				}
				fmt.Fprintf(out, "Job %s cancellation requested; it will stop after the current video\n", view.JobID)
				return nil
			})
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				health, err := c.Health(cmd.Context())
				if health == nil {
					return err
				}
				if asJSON {
					if encErr := writeJSON(cmd, health); encErr != nil {
						return encErr
					}
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				kind := statusOK
				if health.Status != "healthy" {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", kind, health.Status+" at "+c.BaseURL(), colorize))
				fmt.Fprintln(out, renderStatusLine("Database", kind, health.Database, colorize))
				fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo,
					fmt.Sprintf("%d total, %d processing", health.TotalJobs, health.ProcessingJobs), colorize))
				fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d", health.Workers), colorize))
				fmt.Fprintln(out, renderStatusLine("Version", statusInfo, health.Version, colorize))
				return err
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

// watchJob prints a line per distinct progress update and returns the last
// view seen.
func watchJob(ctx context.Context, c *client.Client, out io.Writer, id string, colorize bool) (api.JobStatusView, error) {
	var last api.JobStatusView
	err := c.Watch(ctx, id, func(view api.JobStatusView) {
		if view.Progress == last.Progress && view.Status == last.Status && view.Message == last.Message {
			return
		}
		last = view
		renderProgressLine(out, view, colorize)
	})
	return last, err
}
