package bridge

import (
	"context"
	"fmt"
)

// SettingsModuleName is the name hosts dispatch settings operations under.
const SettingsModuleName = "settings"

// OpFunc handles a single named operation.
type OpFunc func(ctx context.Context, args map[string]any) (any, error)

// SettingsModule exposes an Accessor under the Module capability contract.
// The built-in operation set is getValue, setValue, setValues, deleteValues
// and getConstants; hosts with a wider contract can add operations with
// RegisterOp before registering the module.
type SettingsModule struct {
	accessor *Accessor
	ops      map[string]OpFunc
}

// NewSettingsModule wraps accessor as a dispatchable module.
func NewSettingsModule(accessor *Accessor) *SettingsModule {
	m := &SettingsModule{
		accessor: accessor,
		ops:      make(map[string]OpFunc),
	}
	m.ops["getValue"] = m.opGetValue
	m.ops["setValue"] = m.opSetValue
	m.ops["setValues"] = m.opSetValues
	m.ops["deleteValues"] = m.opDeleteValues
	m.ops["getConstants"] = m.opGetConstants
	return m
}

// RegisterOp adds (or replaces) a named operation.
func (m *SettingsModule) RegisterOp(name string, fn OpFunc) {
	m.ops[name] = fn
}

func (m *SettingsModule) Name() string { return SettingsModuleName }

// Constants exports the accessor's construction-time snapshot.
func (m *SettingsModule) Constants() map[string]any {
	return m.accessor.Constants()
}

func (m *SettingsModule) Invoke(ctx context.Context, op string, args map[string]any) (any, error) {
	fn, ok := m.ops[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownOp, SettingsModuleName, op)
	}
	return fn(ctx, args)
}

func argString(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("argument %q is required", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	return s, nil
}

func (m *SettingsModule) opGetValue(_ context.Context, args map[string]any) (any, error) {
	key, err := argString(args, "key")
	if err != nil {
		return nil, err
	}

	value, ok, err := m.accessor.GetValue(key)
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "present": ok, "value": value}, nil
}

func (m *SettingsModule) opSetValue(_ context.Context, args map[string]any) (any, error) {
	key, err := argString(args, "key")
	if err != nil {
		return nil, err
	}

	// Absent and null both mean delete-via-null.
	value := args["value"]
	if err := m.accessor.SetValue(key, value); err != nil {
		return nil, err
	}
	return map[string]any{"key": key}, nil
}

func (m *SettingsModule) opSetValues(_ context.Context, args map[string]any) (any, error) {
	raw, ok := args["values"]
	if !ok {
		return nil, fmt.Errorf("argument %q is required", "values")
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an object", "values")
	}

	if err := m.accessor.SetValues(values); err != nil {
		return nil, err
	}
	return map[string]any{"count": len(values)}, nil
}

func (m *SettingsModule) opDeleteValues(_ context.Context, args map[string]any) (any, error) {
	raw, ok := args["keys"]
	if !ok {
		return nil, fmt.Errorf("argument %q is required", "keys")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array of strings", "keys")
	}

	keys := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be an array of strings", "keys")
		}
		keys[i] = s
	}

	if err := m.accessor.DeleteValues(keys...); err != nil {
		return nil, err
	}
	return map[string]any{"count": len(keys)}, nil
}

func (m *SettingsModule) opGetConstants(_ context.Context, _ map[string]any) (any, error) {
	return m.accessor.Constants(), nil
}
