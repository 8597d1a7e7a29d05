package submissions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/core/apperror"
)

func strPtr(s string) *string { return &s }

func TestCompilationOutcome(t *testing.T) {
	assert.Nil(t, compilationOutcome(nil))

	ok := compilationOutcome(strPtr("ok"))
	require.NotNil(t, ok)
	assert.True(t, *ok)

	fail := compilationOutcome(strPtr("fail"))
	require.NotNil(t, fail)
	assert.False(t, *fail)

	// Anything else is still pending on the wire.
	assert.Nil(t, compilationOutcome(strPtr("")))
	assert.Nil(t, compilationOutcome(strPtr("retrying")))
}

func TestEvaluationOutcome(t *testing.T) {
	assert.Nil(t, evaluationOutcome(nil))

	ok := evaluationOutcome(strPtr("ok"))
	require.NotNil(t, ok)
	assert.True(t, *ok)

	// Unlike compilation there is no negative wire value.
	assert.Nil(t, evaluationOutcome(strPtr("fail")))
	assert.Nil(t, evaluationOutcome(strPtr("")))
}

func TestWireTime(t *testing.T) {
	assert.Equal(t, 1700000000.0, wireTime(time.Unix(1700000000, 0)))
	assert.Equal(t, 1700000000.25, wireTime(time.Unix(1700000000, 250_000_000)))
}

func TestLatin1(t *testing.T) {
	assert.Equal(t, "abc", latin1([]byte("abc")))
	assert.Equal(t, "é", latin1([]byte{0xE9}))
	assert.Equal(t, "", latin1(nil))
}

func TestCheckDatasetFilterAcceptsDistinctTasks(t *testing.T) {
	datasets := []datasetRow{
		{ID: 1, TaskID: 10},
		{ID: 2, TaskID: 20},
	}
	assert.NoError(t, checkDatasetFilter(datasets, []int64{1, 2}))
	assert.NoError(t, checkDatasetFilter(nil, nil))
}

func TestCheckDatasetFilterRejectsDuplicateTask(t *testing.T) {
	datasets := []datasetRow{
		{ID: 1, TaskID: 10},
		{ID: 2, TaskID: 10},
	}
	err := checkDatasetFilter(datasets, []int64{1, 2})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeConflict, appErr.Code)
}

func TestCheckDatasetFilterRejectsMissingDataset(t *testing.T) {
	datasets := []datasetRow{
		{ID: 1, TaskID: 10},
	}
	err := checkDatasetFilter(datasets, []int64{1, 999})
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
}

func TestMaxScoresByDataset(t *testing.T) {
	datasets := []datasetRow{
		{ID: 1, TaskID: 10, ScoreType: "Sum", ScoreTypeParameters: "10"},
		{ID: 2, TaskID: 11, ScoreType: "GroupMin", ScoreTypeParameters: "[[40, 1], [60, 1]]"},
	}
	testcases := []testcaseRow{
		{DatasetID: 1, Codename: "1"},
		{DatasetID: 1, Codename: "2"},
		{DatasetID: 1, Codename: "3"},
		{DatasetID: 2, Codename: "a"},
		{DatasetID: 2, Codename: "b"},
	}

	scores, err := maxScoresByDataset(datasets, testcases)
	require.NoError(t, err)
	assert.Equal(t, 30.0, scores[1])
	assert.Equal(t, 100.0, scores[2])
}

func TestMaxScoresByDatasetBadScoreType(t *testing.T) {
	datasets := []datasetRow{
		{ID: 1, TaskID: 10, ScoreType: "Bogus", ScoreTypeParameters: "{}"},
	}
	_, err := maxScoresByDataset(datasets, nil)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInternal, appErr.Code)
	assert.Equal(t, int64(1), appErr.Details["dataset"])
}
