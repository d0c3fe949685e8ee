package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"shortcast/internal/api"
)

const displayTimeLayout = "2006-01-02 15:04 MST"

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format(displayTimeLayout)
}

func videoCounts(view api.JobStatusView) string {
	return fmt.Sprintf("%d/%d/%d", view.VideosGenerated, view.VideosUploaded, view.EstimatedVideos)
}

func buildJobListRows(views []api.JobStatusView, colorize bool) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.JobID,
			renderStatus(v.Status, colorize),
			strconv.Itoa(v.Progress) + "%",
			v.VideoType,
			videoCounts(v),
			formatDisplayTime(v.CreatedAt),
		})
	}
	return rows
}

func renderJobList(out io.Writer, views []api.JobStatusView, colorize bool) {
	if len(views) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}
	fmt.Fprint(out, renderTable(tableSpec{
		headers: []string{"Job", "Status", "Progress", "Type", "Gen/Up/Total", "Created"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	}, buildJobListRows(views, colorize)))
}

func buildArtifactRows(artifacts []api.ArtifactView, colorize bool) [][]string {
	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		note := a.Error
		if note == "" {
			note = a.Warning
		}
		target := a.MediaURL
		if target == "" {
			target = a.MediaHandle
		}
		rows = append(rows, []string{
			fmt.Sprintf("%02d", a.Index),
			renderStatus(a.Status, colorize),
			formatDisplayTime(a.ScheduledPublishAt),
			target,
			note,
		})
	}
	return rows
}

func renderJobDetail(out io.Writer, view api.JobStatusView, colorize bool) {
	for _, line := range renderSectionHeader("Job "+view.JobID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, labelled("Status", renderStatus(view.Status, colorize)))
	fmt.Fprintln(out, labelled("Progress", fmt.Sprintf("%d%%", view.Progress)))
	if view.Message != "" {
		fmt.Fprintln(out, labelled("Message", view.Message))
	}
	fmt.Fprintln(out, labelled("Type", view.VideoType))
	fmt.Fprintln(out, labelled("Videos", fmt.Sprintf("%d generated, %d uploaded, %d total",
		view.VideosGenerated, view.VideosUploaded, view.EstimatedVideos)))
	fmt.Fprintln(out, labelled("Created", formatDisplayTime(view.CreatedAt)))
	if view.CompletedAt != "" {
		fmt.Fprintln(out, labelled("Finished", formatDisplayTime(view.CompletedAt)))
	}
	if view.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, view.Error, colorize))
	}
	for _, warning := range view.Warnings {
		fmt.Fprintln(out, renderStatusLine("Warning", statusWarn, warning, colorize))
	}
	if len(view.Artifacts) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(tableSpec{
		title:   "Artifacts",
		headers: []string{"#", "Status", "Publish At", "Media", "Note"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	}, buildArtifactRows(view.Artifacts, colorize)))
}

func renderProgressLine(out io.Writer, view api.JobStatusView, colorize bool) {
	fmt.Fprintf(out, "[%3d%%] %s %s\n", view.Progress, renderStatus(view.Status, colorize), view.Message)
}
