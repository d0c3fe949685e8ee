package workflow

import (
	"math"

	"shortcast/internal/queue"
)

// stageWeight is the share of one artifact's work done once it reaches a state.
var stageWeight = map[queue.ArtifactStatus]float64{
	queue.ArtifactPending:       0,
	queue.ArtifactGenerating:    0.1,
	queue.ArtifactGenerated:     0.4,
	queue.ArtifactUploadPending: 0.45,
	queue.ArtifactUploaded:      0.7,
	queue.ArtifactScheduled:     0.9,
}

// computeProgress returns floor(100 * (resolved + in-flight weight) / total).
func computeProgress(job *queue.Job) int {
	total := len(job.Segments)
	if total == 0 {
		return 0
	}
	done := 0.0
	for _, a := range job.Artifacts {
		if a.Status == queue.ArtifactNotified {
			done++
			continue
		}
		done += stageWeight[a.Status]
	}
	progress := int(math.Floor(100 * done / float64(total)))
	if progress > 100 {
		progress = 100
	}
	return progress
}
