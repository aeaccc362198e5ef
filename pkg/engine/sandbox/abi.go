package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

const (
	// AllocateExport is the guest allocator used to pass bytes into a guest.
	AllocateExport = "allocate"

	// PostReturnPrefix names the optional cleanup hook of an export.
	PostReturnPrefix = "cabi_post_"

	// InitializeExport is run once when an instance starts, if present.
	InitializeExport = "_initialize"

	// ExtismHostModule is imported by modules built with an Extism PDK.
	ExtismHostModule = "extism:host/env"
)

// ABI is the calling convention a module speaks.
type ABI int

const (
	// ABINative passes JSON through guest memory as packed ptr<<32|len values.
	ABINative ABI = iota

	// ABIExtism uses the Extism kernel for input and output.
	ABIExtism
)

func (a ABI) String() string {
	if a == ABIExtism {
		return "extism"
	}
	return "native"
}

func pack(ptr, size uint32) uint64 {
	return uint64(ptr)<<32 | uint64(size)
}

func unpack(v uint64) (ptr, size uint32) {
	return uint32(v >> 32), uint32(v)
}

// guestMemory returns the instance's exported memory. api.Module.Memory
// returns a typed nil for memoryless modules, so the export list decides.
func guestMemory(mod api.Module) (api.Memory, error) {
	if len(mod.ExportedMemoryDefinitions()) == 0 {
		return nil, fmt.Errorf("module exports no memory")
	}
	return mod.Memory(), nil
}

// readPacked copies the region described by a packed value out of guest memory.
func readPacked(mod api.Module, packed uint64) ([]byte, error) {
	ptr, size := unpack(packed)
	if size == 0 {
		return nil, nil
	}
	mem, err := guestMemory(mod)
	if err != nil {
		return nil, err
	}
	view, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("region [%d, %d) is out of bounds of %d bytes", ptr, uint64(ptr)+uint64(size), mem.Size())
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// writeGuest copies data into memory obtained from the guest's allocator.
func writeGuest(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}

	mem, err := guestMemory(mod)
	if err != nil {
		return 0, err
	}

	alloc := mod.ExportedFunction(AllocateExport)
	if alloc == nil {
		return 0, fmt.Errorf("module does not export %q", AllocateExport)
	}

	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", AllocateExport, err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("%s returned %d values", AllocateExport, len(res))
	}

	ptr := uint32(res[0])
	if !mem.Write(ptr, data) {
		return 0, fmt.Errorf("allocated region at %d is out of bounds", ptr)
	}
	return pack(ptr, uint32(len(data))), nil
}

// checkWorldSignature verifies an export has type (i32, i32) -> i64.
func checkWorldSignature(export string, def api.FunctionDefinition) error {
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) == 2 && params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32 &&
		len(results) == 1 && results[0] == api.ValueTypeI64 {
		return nil
	}
	return fmt.Errorf("%s has type %s, want (i32, i32) -> (i64)", export, signature(def))
}

func signature(def api.FunctionDefinition) string {
	return fmt.Sprintf("(%s) -> (%s)", valueTypes(def.ParamTypes()), valueTypes(def.ResultTypes()))
}

func valueTypes(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}
