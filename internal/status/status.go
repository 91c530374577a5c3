package status

import (
	"context"

	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/types"
)

// ProgressFor maps a lifecycle status to the client-facing progress
// fraction. Error resets to zero so UIs drop the bar.
var ProgressFor = map[types.Status]float64{
	types.StatusUploading:    0.15,
	types.StatusTranscribing: 0.45,
	types.StatusSummarizing:  0.75,
	types.StatusReady:        1.0,
	types.StatusError:        0.0,
}

// StepFor numbers the stages for clients that render a stepper. Error gets
// an out-of-band value.
var StepFor = map[types.Status]int{
	types.StatusUploading:    1,
	types.StatusTranscribing: 2,
	types.StatusSummarizing:  4,
	types.StatusReady:        5,
	types.StatusError:        99,
}

// Store is the subset of persistence the tracker needs.
type Store interface {
	UpdateRecordingStatus(ctx context.Context, id string, status types.Status, lastError *string) error
	MirrorPipelineRun(ctx context.Context, recordingID string, stage types.Status, progress float64, step int) error
}

// Tracker advances a recording through the lifecycle. The recordings row is
// the source of truth: a failed write there fails the transition. The
// pipeline_runs mirror is advisory and its failures are only logged.
type Tracker struct {
	Store Store
	Log   *logrus.Entry
}

func NewTracker(store Store, log *logrus.Entry) *Tracker {
	return &Tracker{Store: store, Log: log}
}

func (t *Tracker) Set(ctx context.Context, recordingID string, status types.Status, lastError *string) error {
	if err := t.Store.UpdateRecordingStatus(ctx, recordingID, status, lastError); err != nil {
		return err
	}

	progress := ProgressFor[status]
	step := StepFor[status]
	if err := t.Store.MirrorPipelineRun(ctx, recordingID, status, progress, step); err != nil {
		t.Log.WithFields(logrus.Fields{
			"recording_id": recordingID,
			"stage":        status,
			"error":        err.Error(),
		}).Warn("pipeline run mirror write failed")
	}
	return nil
}
