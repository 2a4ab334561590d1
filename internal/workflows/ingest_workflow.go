package workflows

import (
	"time"

	"kb/internal/activities"
	"kb/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestStatus = "GetIngestStatus"

// IngestWorkflowID builds the deterministic workflow id for a document so a
// second ingest request for the same id dedups at the Temporal layer.
func IngestWorkflowID(docID string) string {
	return "ingest-" + docID
}

// DocumentIngestWorkflow drives one document through the ingest pipeline.
// The activity owns the terminal status transition; a pipeline failure comes
// back as a failed result, not an activity error, so the workflow completes
// cleanly either way.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := IngestStatus{DocID: input.DocID, Status: models.StatusProcessing}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Resolve the document first so an unknown id fails fast and the status
	// query can report the filename while chunks are still embedding.
	var doc activities.GetDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "GetDocumentActivity", activities.GetDocumentInput{DocID: input.DocID}).Get(ctx, &doc); err != nil {
		return "", err
	}
	status.Filename = doc.Document.Filename

	var out activities.IngestDocumentOutput
	err := workflow.ExecuteActivity(ctx, "IngestDocumentActivity", activities.IngestDocumentInput{DocID: input.DocID}).Get(ctx, &out)
	if err != nil {
		status.Status = models.StatusFailed
		status.FailReason = err.Error()
		markErr := workflow.ExecuteActivity(ctx, "MarkDocumentFailedActivity", activities.MarkDocumentFailedInput{
			DocID:  input.DocID,
			Reason: err.Error(),
		}).Get(ctx, nil)
		if markErr != nil {
			return "", markErr
		}
		return status.Status, nil
	}

	status.Status = out.Result.Status
	status.ChunkCount = out.Result.ChunkCount
	status.FailReason = out.Result.FailReason
	return status.Status, nil
}

// DocumentDeleteWorkflow removes a document and its derived data. Delete is
// a workflow rather than a direct call so it serializes with a concurrent
// ingest of the same document inside the worker.
func DocumentDeleteWorkflow(ctx workflow.Context, input DocumentDeleteInput) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	return workflow.ExecuteActivity(ctx, "DeleteDocumentActivity", activities.DeleteDocumentInput{DocID: input.DocID}).Get(ctx, nil)
}
