package services_test

import (
	"context"
	"testing"

	"shortcast/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job_1")
	ctx = services.WithArtifact(ctx, 2)
	ctx = services.WithStage(ctx, "upload")
	ctx = services.WithOwner(ctx, "marketing")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job_1" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if idx, ok := services.ArtifactFromContext(ctx); !ok || idx != 2 {
		t.Fatalf("unexpected artifact: %v %v", idx, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "upload" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if owner, ok := services.OwnerFromContext(ctx); !ok || owner != "marketing" {
		t.Fatalf("unexpected owner: %v %v", owner, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithJobID(ctx, "")
	ctx = services.WithArtifact(ctx, 0)
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected blank stage to be ignored")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected blank job id to be ignored")
	}
	if _, ok := services.ArtifactFromContext(ctx); ok {
		t.Fatal("expected zero artifact index to be ignored")
	}
}
