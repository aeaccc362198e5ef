package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorMessage(t *testing.T) {
	err := ErrExportNotFound.WithPlugin("demo").WithExport("load")
	assert.Equal(t, "[invocation:export_not_found] Export not found (plugin: demo, export: load)", err.Error())

	err = Wrap(DomainDiscovery, CodeCompileFailed, "Failed to compile module", fmt.Errorf("bad magic")).WithPath("/p/bad.wasm")
	assert.Equal(t, "[discovery:compile_failed] Failed to compile module (path: /p/bad.wasm): bad magic", err.Error())
}

func TestWithHelpersDoNotMutateSentinels(t *testing.T) {
	_ = ErrPluginNotFound.WithPlugin("x").WithCause(fmt.Errorf("boom"))
	assert.Empty(t, ErrPluginNotFound.PluginID)
	assert.Nil(t, ErrPluginNotFound.Cause)
}

func TestErrorsIsMatchesDomainAndCode(t *testing.T) {
	err := fmt.Errorf("call failed: %w", ErrExportNotFound.WithPlugin("demo"))

	assert.True(t, stderrors.Is(err, ErrExportNotFound))
	assert.False(t, stderrors.Is(err, ErrPluginNotFound))
	assert.True(t, IsMissingExport(err))
	assert.False(t, IsTrap(err))
	assert.True(t, InDomain(err, DomainInvocation))

	de, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "demo", de.PluginID)
	assert.Equal(t, CodeExportNotFound, de.Code())
	assert.Equal(t, DomainInvocation, de.Domain())
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(DomainInvocation, CodeGuestTrap, "Guest trapped", cause)
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsTrap(err))
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := FromContext(ctx)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, CodeExecutionTimeout, err.ErrCode)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	err = FromContext(ctx)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, CodeExecutionCancelled, err.ErrCode)
	assert.True(t, stderrors.Is(err, context.Canceled))
}
