package sandbox

import (
	"context"
	"fmt"

	extism "github.com/extism/go-sdk"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// extismInstance runs modules built with an Extism PDK. Input and output
// travel through the Extism kernel, so there is no guest allocator to free
// and no cleanup hook.
type extismInstance struct {
	plugin *extism.Plugin
}

func (i *extismInstance) Call(ctx context.Context, export string, input []byte) ([]byte, error) {
	if !i.plugin.FunctionExists(export) {
		return nil, errors.ErrExportNotFound.WithExport(export)
	}

	code, output, err := i.plugin.CallWithContext(ctx, export, input)
	if err != nil {
		return nil, callError(ctx, export, err)
	}
	if code != 0 {
		return nil, callError(ctx, export, fmt.Errorf("function returned non-zero exit code: %d", code))
	}

	out := make([]byte, len(output))
	copy(out, output)
	return out, nil
}

func (i *extismInstance) PostReturn(context.Context, string) error {
	return nil
}

func (i *extismInstance) Close(ctx context.Context) error {
	return i.plugin.Close(ctx)
}
