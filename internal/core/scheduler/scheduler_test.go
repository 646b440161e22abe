package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddReplacesAndRemoves(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Task{Name: "unread-sweep", Schedule: "0 */30 * * * *", Run: noop}))
	require.NoError(t, s.Add(Task{Name: "job-cleanup", Schedule: "0 0 3 * * *", Run: noop}))
	require.NoError(t, s.Add(Task{Name: "unread-sweep", Schedule: "0 */5 * * * *", Run: noop}))
	assert.Equal(t, []string{"job-cleanup", "unread-sweep"}, s.Tasks())
	assert.Len(t, s.cron.Entries(), 2)

	s.Remove("job-cleanup")
	assert.Equal(t, []string{"unread-sweep"}, s.Tasks())
}

func TestAddRejectsBadInput(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.Add(Task{Name: "x", Schedule: "not a cron", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Task{Name: "y", Schedule: "* * * * * *"}))
}

func TestRunTaskSurvivesPanicsAndErrors(t *testing.T) {
	ran := 0
	runTask(Task{Name: "boom", Timeout: 1, Run: func(context.Context) error {
		ran++
		panic("boom")
	}})
	runTask(Task{Name: "err", Timeout: 1, Run: func(context.Context) error {
		ran++
		return errors.New("db down")
	}})
	assert.Equal(t, 2, ran)
}
