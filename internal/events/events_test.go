package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hitoshi/beetlebase/internal/model"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		kind   model.JobKind
		status model.JobStatus
		want   string
	}{
		{model.JobKindImport, model.JobStatusRunning, "jobs.import.running"},
		{model.JobKindImport, model.JobStatusSucceeded, "jobs.import.succeeded"},
		{model.JobKindExport, model.JobStatusPending, "jobs.export.pending"},
		{model.JobKindExport, model.JobStatusFailed, "jobs.export.failed"},
	}
	for _, tt := range tests {
		got := Subject(&model.Job{Kind: tt.kind, Status: tt.status})
		if got != tt.want {
			t.Errorf("Subject(%s, %s) = %s, want %s", tt.kind, tt.status, got, tt.want)
		}
	}
}

func TestNewJobEvent_JSON(t *testing.T) {
	submitted := time.Date(2024, 5, 28, 9, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID:          "job-e1",
		Kind:        model.JobKindExport,
		Type:        model.JobTypePedigreePDF,
		Status:      model.JobStatusCompleted,
		OwnerID:     "u1",
		Result:      "Download",
		Attempts:    1,
		SubmittedAt: submitted,
		UpdatedAt:   submitted,
		Artifact:    &model.Artifact{URL: "/api/exports/job-e1/download", Filename: "pedigree.pdf"},
		RowErrors:   []model.RowError{{Line: 2}},
	}

	data, err := json.Marshal(NewJobEvent(job))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "job-e1" || got["status"] != "completed" || got["kind"] != "export" {
		t.Errorf("unexpected payload: %s", data)
	}
	if got["artifact_url"] != "/api/exports/job-e1/download" {
		t.Errorf("expected artifact_url, got %v", got["artifact_url"])
	}
	if got["row_errors"] != float64(1) {
		t.Errorf("expected row_errors=1, got %v", got["row_errors"])
	}
}

func TestNewJobEvent_OmitsEmptyArtifact(t *testing.T) {
	data, _ := json.Marshal(NewJobEvent(&model.Job{ID: "j", Kind: model.JobKindImport}))
	var got map[string]any
	_ = json.Unmarshal(data, &got)
	if _, ok := got["artifact_url"]; ok {
		t.Errorf("expected artifact_url to be omitted: %s", data)
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.PublishJob(context.Background(), &model.Job{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	p.Close()
}
