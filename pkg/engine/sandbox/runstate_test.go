package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/logging"
)

func TestRunStateReleasesInReverseOrder(t *testing.T) {
	logs := logging.NewPluginLogStore(10)
	rs := newRunState("demo", "load", config.NewConfig(nil), logs, logging.NewNopLogger())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, rs.Track(name, func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}
	assert.Equal(t, 3, rs.Tracked())

	_, _ = rs.Stdout.Write([]byte("out line\n"))
	_, _ = rs.Stderr.Write([]byte("err line\n"))

	require.NoError(t, rs.Close(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Equal(t, 0, rs.Tracked())

	entries := logs.Entries("demo", time.Time{}, 0)
	require.Len(t, entries, 2)
	assert.Equal(t, logging.SourceStdout, entries[0].Source)
	assert.Equal(t, logging.SourceStderr, entries[1].Source)

	require.NoError(t, rs.Close(context.Background()), "close is idempotent")
	assert.Len(t, logs.Entries("demo", time.Time{}, 0), 2)
	assert.Error(t, rs.Track("late", func(context.Context) error { return nil }))
}

func TestRunStateCloseJoinsErrors(t *testing.T) {
	rs := newRunState("demo", "load", config.NewConfig(nil), nil, nil)
	require.NoError(t, rs.Track("a", func(context.Context) error { return fmt.Errorf("a failed") }))
	require.NoError(t, rs.Track("b", func(context.Context) error { return nil }))

	err := rs.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close a: a failed")
}

func TestRunStateCloseWaitsForCall(t *testing.T) {
	rs := newRunState("demo", "load", config.NewConfig(nil), nil, nil)
	rs.enter()

	done := make(chan struct{})
	go func() {
		_ = rs.Close(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("close returned while a call was in progress")
	case <-time.After(20 * time.Millisecond):
	}

	rs.exit()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not return after the call finished")
	}
}

func TestRunStateContext(t *testing.T) {
	rs := newRunState("demo", "load", config.NewConfig(nil), nil, nil)
	_, ok := RunStateFrom(context.Background())
	assert.False(t, ok)

	got, ok := RunStateFrom(WithRunState(context.Background(), rs))
	require.True(t, ok)
	assert.Same(t, rs, got)
	assert.NotEmpty(t, rs.ID)
	assert.NotEqual(t, rs.instanceName(), rs.instanceName())
}
