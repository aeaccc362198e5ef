package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	extism "github.com/extism/go-sdk"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
)

// HostModuleName is the import module guests use for host capabilities.
const HostModuleName = "ember"

// Built-in capability names.
const (
	CapabilityLog    = "log"
	CapabilityConfig = "config"
)

// ByteHandler serves one host capability. Input and output are opaque
// bytes, by convention JSON. The handler can find the calling plugin with
// RunStateFrom(ctx).
type ByteHandler func(ctx context.Context, input []byte) ([]byte, error)

// Capability is a named host function offered to guests.
type Capability struct {
	Name    string
	Handler ByteHandler
}

// CapabilityTable is the complete, fixed set of functions a guest may import:
// WASI stdio plus the host module. It is built once and shared by all calls.
type CapabilityTable struct {
	handlers map[string]ByteHandler
	names    []string
	extism   []extism.HostFunction
}

// NewCapabilityTable registers the built-ins and extra capabilities with the
// runtime. Guests importing anything else fail to link.
func NewCapabilityTable(ctx context.Context, rt *Runtime, extra ...Capability) (*CapabilityTable, error) {
	t := &CapabilityTable{handlers: make(map[string]ByteHandler)}

	all := append([]Capability{
		{Name: CapabilityLog, Handler: logCapability},
		{Name: CapabilityConfig, Handler: configCapability},
	}, extra...)

	for _, c := range all {
		if c.Name == "" || c.Handler == nil {
			return nil, errors.New(errors.DomainBoot, errors.CodeCapabilityInitFailed, "Capability needs a name and a handler")
		}
		if _, exists := t.handlers[c.Name]; exists {
			return nil, errors.New(errors.DomainBoot, errors.CodeCapabilityInitFailed,
				fmt.Sprintf("Capability %q is registered twice", c.Name))
		}
		t.handlers[c.Name] = c.Handler
		t.names = append(t.names, c.Name)
	}
	sort.Strings(t.names)

	builder := rt.rt.NewHostModuleBuilder(HostModuleName)
	for _, name := range t.names {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(nativeHostFunction(name, t.handlers[name]),
				[]api.ValueType{api.ValueTypeI64},
				[]api.ValueType{api.ValueTypeI64}).
			WithName(name).
			Export(name)

		t.extism = append(t.extism, extismHostFunction(name, t.handlers[name]))
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, errors.Wrap(errors.DomainBoot, errors.CodeCapabilityInitFailed, "Failed to instantiate host module", err)
	}

	return t, nil
}

// Names returns the capability names, sorted.
func (t *CapabilityTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Provides reports whether an import can be satisfied.
func (t *CapabilityTable) Provides(module, name string) bool {
	switch module {
	case wasi_snapshot_preview1.ModuleName:
		return true
	case HostModuleName:
		_, ok := t.handlers[name]
		return ok
	default:
		return false
	}
}

// ExtismFunctions returns the table in the form Extism plugins link against.
func (t *CapabilityTable) ExtismFunctions() []extism.HostFunction {
	return t.extism
}

// nativeHostFunction adapts a ByteHandler to the (i64 packed) -> i64 packed
// convention. A panic here surfaces as a trap in the calling guest.
func nativeHostFunction(name string, h ByteHandler) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		input, err := readPacked(mod, stack[0])
		if err != nil {
			panic(fmt.Errorf("%s.%s: %w", HostModuleName, name, err))
		}

		out, err := h(ctx, input)
		if err != nil {
			out = errorDocument(err)
		}

		packed, err := writeGuest(ctx, mod, out)
		if err != nil {
			panic(fmt.Errorf("%s.%s: %w", HostModuleName, name, err))
		}
		stack[0] = packed
	}
}

func extismHostFunction(name string, h ByteHandler) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(name,
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			var input []byte
			if stack[0] != 0 {
				b, err := p.ReadBytes(stack[0])
				if err != nil {
					panic(fmt.Errorf("%s.%s: %w", HostModuleName, name, err))
				}
				input = b
			}

			out, err := h(ctx, input)
			if err != nil {
				out = errorDocument(err)
			}
			if len(out) == 0 {
				stack[0] = 0
				return
			}

			offset, err := p.WriteBytes(out)
			if err != nil {
				panic(fmt.Errorf("%s.%s: %w", HostModuleName, name, err))
			}
			stack[0] = offset
		},
		[]extism.ValueType{extism.ValueTypePTR},
		[]extism.ValueType{extism.ValueTypePTR},
	)
	fn.SetNamespace(HostModuleName)
	return fn
}

func errorDocument(err error) []byte {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}

type logEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func logCapability(ctx context.Context, input []byte) ([]byte, error) {
	rs, ok := RunStateFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("log called outside of an invocation")
	}

	var entry logEntry
	if err := json.Unmarshal(input, &entry); err != nil {
		entry = logEntry{Message: string(input)}
	}
	rs.Log(logging.SourceGuest, logging.ParseLevel(entry.Level), entry.Message)
	return nil, nil
}

func configCapability(ctx context.Context, _ []byte) ([]byte, error) {
	rs, ok := RunStateFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("config called outside of an invocation")
	}
	return rs.Config.MarshalJSON()
}
