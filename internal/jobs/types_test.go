package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Done(t *testing.T) {
	assert.False(t, StatusRunning.Done())
	assert.True(t, StatusSuccess.Done())
	assert.True(t, StatusFailed.Done())
	assert.True(t, StatusSkipped.Done())
}

func TestRebuildRun_Counts(t *testing.T) {
	run := &RebuildRun{Assets: []AssetResult{
		{RelativePath: "a/cmn.bin", Status: StatusSuccess},
		{RelativePath: "b/cmn.bin", Status: StatusFailed},
		{RelativePath: "c/cmn.bin", Status: StatusSuccess},
	}}
	assert.Equal(t, map[Status]int{StatusSuccess: 2, StatusFailed: 1}, run.Counts())
}
