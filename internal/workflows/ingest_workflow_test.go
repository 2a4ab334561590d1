package workflows

import (
	"context"
	"errors"
	"testing"

	"kb/internal/activities"
	"kb/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newIngestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerActivityName(env, "IngestDocumentActivity", func(context.Context, activities.IngestDocumentInput) (activities.IngestDocumentOutput, error) {
		return activities.IngestDocumentOutput{}, nil
	})
	registerActivityName(env, "MarkDocumentFailedActivity", func(context.Context, activities.MarkDocumentFailedInput) error { return nil })
	registerActivityName(env, "GetDocumentActivity", func(_ context.Context, in activities.GetDocumentInput) (activities.GetDocumentOutput, error) {
		return activities.GetDocumentOutput{Document: models.Document{DocID: in.DocID, Filename: "report.pdf"}}, nil
	})
	return env
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("IngestDocumentActivity", mock.Anything, activities.IngestDocumentInput{DocID: "doc-1"}).
		Return(activities.IngestDocumentOutput{Result: models.IngestResult{DocID: "doc-1", Status: models.StatusProcessed, ChunkCount: 12}}, nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocID: "doc-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusProcessed, out)

	val, err := env.QueryWorkflow(QueryGetIngestStatus)
	require.NoError(t, err)
	var status IngestStatus
	require.NoError(t, val.Get(&status))
	require.Equal(t, 12, status.ChunkCount)
	require.Equal(t, "report.pdf", status.Filename)
}

func TestDocumentIngestWorkflowUnknownDocument(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("GetDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.GetDocumentOutput{}, errors.New("document not found"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocID: "doc-missing"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestDocumentIngestWorkflowFailedResult(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("IngestDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.IngestDocumentOutput{Result: models.IngestResult{DocID: "doc-2", Status: models.StatusFailed, FailReason: "no extractable text"}}, nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocID: "doc-2"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusFailed, out)
}

func TestDocumentIngestWorkflowActivityError(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("IngestDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.IngestDocumentOutput{}, errors.New("storage down"))
	env.OnActivity("MarkDocumentFailedActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocID: "doc-3"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusFailed, out)
}

func TestDocumentDeleteWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentDeleteWorkflow)
	registerActivityName(env, "DeleteDocumentActivity", func(context.Context, activities.DeleteDocumentInput) error { return nil })
	env.OnActivity("DeleteDocumentActivity", mock.Anything, activities.DeleteDocumentInput{DocID: "doc-9"}).Return(nil)

	env.ExecuteWorkflow(DocumentDeleteWorkflow, DocumentDeleteInput{DocID: "doc-9"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestIngestWorkflowID(t *testing.T) {
	require.Equal(t, "ingest-abc", IngestWorkflowID("abc"))
}
