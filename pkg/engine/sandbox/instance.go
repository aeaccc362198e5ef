package sandbox

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// Instance is one instantiation of a Module, used for a single invocation.
type Instance interface {
	// Call runs an export with input bytes and returns a copy of its output.
	Call(ctx context.Context, export string, input []byte) ([]byte, error)

	// PostReturn runs the export's cleanup hook, if the guest defines one.
	PostReturn(ctx context.Context, export string) error

	// Close releases the instance.
	Close(ctx context.Context) error
}

// nativeInstance speaks the packed ptr/len ABI.
type nativeInstance struct {
	mod        api.Module
	lastResult uint64
}

func (i *nativeInstance) Call(ctx context.Context, export string, input []byte) ([]byte, error) {
	fn := i.mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.ErrExportNotFound.WithExport(export)
	}
	if err := checkWorldSignature(export, fn.Definition()); err != nil {
		return nil, errors.ErrSignatureMismatch.WithExport(export).WithCause(err)
	}

	var ptr, size uint32
	if len(input) > 0 {
		packed, err := writeGuest(ctx, i.mod, input)
		if err != nil {
			return nil, callError(ctx, export, err)
		}
		ptr, size = unpack(packed)
	}

	res, err := fn.Call(ctx, uint64(ptr), uint64(size))
	if err != nil {
		return nil, callError(ctx, export, err)
	}
	i.lastResult = res[0]

	out, err := readPacked(i.mod, res[0])
	if err != nil {
		return nil, errors.Wrap(errors.DomainInvocation, errors.CodeDecodeFailed, "Guest returned an invalid result region", err).
			WithExport(export)
	}
	return out, nil
}

func (i *nativeInstance) PostReturn(ctx context.Context, export string) error {
	fn := i.mod.ExportedFunction(PostReturnPrefix + export)
	if fn == nil {
		return nil
	}
	if _, err := fn.Call(ctx, i.lastResult); err != nil {
		if ctx.Err() != nil {
			return errors.FromContext(ctx).WithExport(export)
		}
		return errors.Wrap(errors.DomainInvocation, errors.CodeCleanupFailed, "Cleanup hook failed", err).
			WithExport(export)
	}
	return nil
}

func (i *nativeInstance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// callError classifies a failed guest call. Interruption by the context is
// a timeout; anything else is a trap.
func callError(ctx context.Context, export string, err error) error {
	if ctx.Err() != nil {
		return errors.FromContext(ctx).WithExport(export)
	}
	return errors.Wrap(errors.DomainInvocation, errors.CodeGuestTrap, "Guest trapped", err).WithExport(export)
}
