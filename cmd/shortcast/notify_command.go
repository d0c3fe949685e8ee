package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shortcast/internal/notifications"
	"shortcast/internal/services/webhook"
	"shortcast/internal/workflow"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	notifyCmd.AddCommand(newNotifyTestCommand(ctx))
	return notifyCmd
}

func newNotifyTestCommand(ctx *commandContext) *cobra.Command {
	var includeWebhook bool
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test operator alert, and optionally a sample webhook message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "Operator alerts disabled (notifications.ntfy_topic is empty)")
			} else {
				svc := notifications.NewService(cfg)
				if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
					return fmt.Errorf("send test alert: %w", err)
				}
				fmt.Fprintln(out, "Test alert sent")
			}

			if !includeWebhook {
				return nil
			}
			notifier, err := webhook.FromConfig(cfg)
			if err != nil {
				return err
			}
			if !notifier.Enabled() {
				fmt.Fprintln(out, "Webhook disabled (webhook.url is empty)")
				return nil
			}
			payload := workflow.Payload{
				JobID:     "job_test",
				Index:     1,
				Total:     1,
				Content:   "shortcast webhook test",
				Label:     "shortcast webhook test",
				PublishAt: time.Now().UTC().Add(time.Hour).Truncate(time.Minute),
			}
			if err := notifier.Notify(cmd.Context(), payload); err != nil {
				return fmt.Errorf("send test webhook: %w", err)
			}
			fmt.Fprintln(out, "Test webhook sent")
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeWebhook, "webhook", false, "Also post a sample message to webhook.url")
	return cmd
}
