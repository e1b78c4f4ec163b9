package tcc

import (
	"fmt"
	"math"
	"sort"
)

// Identifier is implemented by Command, Parameter and Timeout
type Identifier interface {
	ID() uint16
	String() string
}

// Registry holds the static command, parameter and timeout tables. It is
// immutable after NewRegistry returns and safe to share between goroutines.
type Registry struct {
	commands   map[Command]CommandSpec
	parameters map[Parameter]ParameterSpec
	timeouts   map[Timeout]TimeoutSpec
	roots      []Timeout
	byCANID    map[uint32]Parameter
}

var defaultRegistry = mustRegistry(NewRegistry(defaultCommands(), defaultParameters(), defaultTimeouts(), DefaultRoots))

// Default returns the registry of the production TCC
func Default() *Registry { return defaultRegistry }

func mustRegistry(r *Registry, err error) *Registry {
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry validates the tables and builds the CAN id reverse index.
// The maps are copied; later changes by the caller are not observed.
func NewRegistry(
	commands map[Command]CommandSpec,
	parameters map[Parameter]ParameterSpec,
	timeouts map[Timeout]TimeoutSpec,
	roots []Timeout,
) (*Registry, error) {
	r := &Registry{
		commands:   make(map[Command]CommandSpec, len(commands)),
		parameters: make(map[Parameter]ParameterSpec, len(parameters)),
		timeouts:   make(map[Timeout]TimeoutSpec, len(timeouts)),
		roots:      append([]Timeout(nil), roots...),
		byCANID:    make(map[uint32]Parameter, len(parameters)),
	}

	for c, spec := range commands {
		if spec.Min > spec.Max {
			return nil, fmt.Errorf("%w: command %s range [%g, %g] is empty", ErrConfiguration, c, spec.Min, spec.Max)
		}
		if spec.Kind == CommandSimple && (spec.Min < math.MinInt8 || spec.Max > math.MaxInt8) {
			return nil, fmt.Errorf("%w: simple command %s range [%g, %g] exceeds one byte", ErrConfiguration, c, spec.Min, spec.Max)
		}
		if spec.Kind != CommandSimple && spec.Kind != CommandWithValue {
			return nil, fmt.Errorf("%w: command %s has kind %s", ErrConfiguration, c, spec.Kind)
		}
		r.commands[c] = spec
	}

	for p, spec := range parameters {
		if other, dup := r.byCANID[spec.CANID]; dup {
			return nil, fmt.Errorf("%w: parameters %s and %s share CAN id %d", ErrConfiguration, other, p, spec.CANID)
		}
		if spec.Kind == DecodeBigIntDiv && spec.Divider == 0 {
			return nil, fmt.Errorf("%w: parameter %s has divider 0", ErrConfiguration, p)
		}
		r.byCANID[spec.CANID] = p
		r.parameters[p] = spec
	}

	for t, spec := range timeouts {
		if spec.IsCombine() {
			if len(spec.Children) == 0 {
				return nil, fmt.Errorf("%w: group timeout %s has no children", ErrConfiguration, t)
			}
			for _, child := range spec.Children {
				if _, ok := timeouts[child]; !ok {
					return nil, fmt.Errorf("%w: group timeout %s references unknown child %s", ErrConfiguration, t, child)
				}
			}
			spec.Children = append([]Timeout(nil), spec.Children...)
		} else {
			ps, ok := parameters[spec.Parameter]
			if !ok {
				return nil, fmt.Errorf("%w: timeout %s bound to unknown parameter %s", ErrConfiguration, t, spec.Parameter)
			}
			if ps.CANID > math.MaxUint16 {
				return nil, fmt.Errorf("%w: timeout %s parameter CAN id %d exceeds two bytes", ErrConfiguration, t, ps.CANID)
			}
		}
		if spec.Range != nil {
			rg := *spec.Range
			if rg.Min > rg.Max {
				return nil, fmt.Errorf("%w: timeout %s range [%d, %d] is empty", ErrConfiguration, t, rg.Min, rg.Max)
			}
			spec.Range = &rg
		}
		r.timeouts[t] = spec
	}

	for _, root := range r.roots {
		if _, ok := r.timeouts[root]; !ok {
			return nil, fmt.Errorf("%w: unknown root timeout %s", ErrConfiguration, root)
		}
	}

	if err := r.checkCycles(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Timeout]int, len(r.timeouts))

	var visit func(t Timeout) error
	visit = func(t Timeout) error {
		switch state[t] {
		case visiting:
			return fmt.Errorf("%w: timeout %s is part of a cycle", ErrConfiguration, t)
		case done:
			return nil
		}
		state[t] = visiting
		for _, child := range r.timeouts[t].Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		state[t] = done
		return nil
	}

	for _, t := range r.Timeouts() {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the spec registered for c
func (r *Registry) Command(c Command) (CommandSpec, bool) {
	spec, ok := r.commands[c]
	return spec, ok
}

// Parameter returns the spec registered for p
func (r *Registry) Parameter(p Parameter) (ParameterSpec, bool) {
	spec, ok := r.parameters[p]
	return spec, ok
}

// ParameterByCANID resolves the parameter reported on an arbitration id
func (r *Registry) ParameterByCANID(id uint32) (Parameter, ParameterSpec, bool) {
	p, ok := r.byCANID[id]
	if !ok {
		return 0, ParameterSpec{}, false
	}
	return p, r.parameters[p], true
}

// Timeout returns the spec registered for t with its own copy of Children
func (r *Registry) Timeout(t Timeout) (TimeoutSpec, bool) {
	spec, ok := r.timeouts[t]
	if ok {
		spec.Children = append([]Timeout(nil), spec.Children...)
	}
	return spec, ok
}

// Roots returns the timeout groups applied on open, in order
func (r *Registry) Roots() []Timeout {
	return append([]Timeout(nil), r.roots...)
}

// Commands returns all commands ordered by id
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parameters returns all parameters ordered by id
func (r *Registry) Parameters() []Parameter {
	out := make([]Parameter, 0, len(r.parameters))
	for p := range r.parameters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Timeouts returns all timeouts ordered by id
func (r *Registry) Timeouts() []Timeout {
	out := make([]Timeout, 0, len(r.timeouts))
	for t := range r.timeouts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultParameterValues returns a fresh live parameter table
func (r *Registry) DefaultParameterValues() map[Parameter]Value {
	out := make(map[Parameter]Value, len(r.parameters))
	for p, spec := range r.parameters {
		out[p] = spec.Default
	}
	return out
}

// DefaultTimeoutValues returns a fresh live timeout table
func (r *Registry) DefaultTimeoutValues() map[Timeout]int {
	out := make(map[Timeout]int, len(r.timeouts))
	for t, spec := range r.timeouts {
		out[t] = spec.Default
	}
	return out
}

// LookupCommand resolves a wire argument id to a known command
func (r *Registry) LookupCommand(id uint16) (Command, bool) {
	c := Command(id)
	_, ok := r.commands[c]
	return c, ok
}

// LookupParameter resolves a wire argument id to a known parameter
func (r *Registry) LookupParameter(id uint16) (Parameter, bool) {
	p := Parameter(id)
	_, ok := r.parameters[p]
	return p, ok
}

// LookupTimeout resolves a wire argument id to a known timeout
func (r *Registry) LookupTimeout(id uint16) (Timeout, bool) {
	t := Timeout(id)
	_, ok := r.timeouts[t]
	return t, ok
}
