package api

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"shortcast/internal/config"
	"shortcast/internal/script"
)

const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

var voices = map[string]struct{}{
	"alloy":   {},
	"echo":    {},
	"fable":   {},
	"onyx":    {},
	"nova":    {},
	"shimmer": {},
}

// Voices returns the accepted voice names.
func Voices() []string {
	return []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
}

// submission is a validated SubmitRequest.
type submission struct {
	script    string
	voice     string
	speed     float64
	kind      script.Kind
	publishAt time.Time
	segments  []string
}

var scheduleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduledTime accepts RFC3339 and treats offset-less ISO forms as UTC.
func ParseScheduledTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range scheduleLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.New("must be an RFC 3339 timestamp")
}

func validateSubmit(cfg *config.Config, req SubmitRequest, now time.Time) (submission, error) {
	verr := &ValidationError{}
	var sub submission

	sub.script = strings.TrimSpace(req.MarketScript)
	switch {
	case sub.script == "":
		verr.add("market_script", "is required")
	case cfg.Limits.MaxScriptLength > 0 && utf8.RuneCountInString(sub.script) > cfg.Limits.MaxScriptLength:
		verr.add("market_script", "must be at most %d characters", cfg.Limits.MaxScriptLength)
	}

	sub.voice = strings.ToLower(strings.TrimSpace(req.Voice))
	if sub.voice == "" {
		sub.voice = cfg.Scheduling.DefaultVoice
	}
	if _, ok := voices[sub.voice]; !ok {
		verr.add("voice", "must be one of %s", strings.Join(Voices(), ", "))
	}

	sub.speed = cfg.Scheduling.DefaultSpeed
	if req.Speed != nil {
		sub.speed = *req.Speed
	}
	if !(sub.speed >= minSpeed && sub.speed <= maxSpeed) {
		verr.add("speed", "must be between %.2f and %.1f", minSpeed, maxSpeed)
	}

	kindValue := req.VideoType
	if strings.TrimSpace(kindValue) == "" {
		kindValue = string(script.KindShort)
	}
	kind, kindErr := script.ParseKind(kindValue)
	if kindErr != nil {
		verr.add("video_type", "must be short or regular")
	}
	sub.kind = kind

	publishAt, err := ParseScheduledTime(req.ScheduledDatetime)
	if err != nil {
		verr.add("scheduled_datetime", "%s", err.Error())
	} else if publishAt.Before(now.Add(-cfg.PastTolerance())) {
		verr.add("scheduled_datetime", "must not be in the past")
	}
	sub.publishAt = publishAt

	if sub.script != "" && kindErr == nil {
		segments, splitErr := script.Split(sub.script, cfg.Scheduling.Delimiter, kind)
		if splitErr != nil {
			verr.add("market_script", "contains no content between delimiters")
		}
		sub.segments = segments
	}

	return sub, verr.orNil()
}
