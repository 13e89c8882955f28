// Package runtime is the embeddable host API over the two execution
// engines: one Config, one set of registered natives, reused across many
// Eval/EvalFile calls. VM construction plus native registration, lifted
// out of the CLI's main into a reusable package so both the CLI and a
// test harness can share it.
package runtime

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
	"github.com/atl-lang/atlas-sub003/pkg/builtins"
	"github.com/atl-lang/atlas-sub003/pkg/compiler"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/interp"
	"github.com/atl-lang/atlas-sub003/pkg/ownership"
	"github.com/atl-lang/atlas-sub003/pkg/parser"
	"github.com/atl-lang/atlas-sub003/pkg/value"
	"github.com/atl-lang/atlas-sub003/pkg/vm"
)

// Engine selects which of the two engines Eval runs a program through.
type Engine int

const (
	EngineVM Engine = iota
	EngineInterp
)

// SandboxPolicy names a bundle of capability defaults a TOML project config
// can select instead of spelling out every flag by hand.
type SandboxPolicy string

const (
	SandboxIsolated  SandboxPolicy = "isolated"
	SandboxReadOnly  SandboxPolicy = "readonly"
	SandboxNoNetwork SandboxPolicy = "no-network"
	SandboxNone      SandboxPolicy = "none"
)

// Config is the host-facing execution policy: what a running program may
// touch and how long it may run before it is cancelled.
type Config struct {
	AllowIO          bool
	AllowNetwork     bool
	MaxExecutionTime time.Duration
	MaxMemoryBytes   int64
	SandboxPolicy    SandboxPolicy
	// DebugOwnership turns on pkg/ownership's runtime own/borrow/shared
	// checks. Off by default: a debug build concern, not something a
	// release build should pay for on every call.
	DebugOwnership bool
}

// DefaultConfig denies every capability and runs unbounded — the safest
// default for an embedder that configured nothing.
func DefaultConfig() Config {
	return Config{SandboxPolicy: SandboxIsolated}
}

// resolved applies SandboxPolicy's defaults where the caller didn't already
// set AllowIO/AllowNetwork explicitly; an empty policy behaves like
// SandboxIsolated.
func (c Config) resolved() Config {
	switch c.SandboxPolicy {
	case SandboxNone:
		c.AllowIO, c.AllowNetwork = true, true
	case SandboxReadOnly:
		c.AllowIO, c.AllowNetwork = true, false
	case SandboxNoNetwork:
		c.AllowIO, c.AllowNetwork = true, false
	case SandboxIsolated, "":
		c.AllowIO, c.AllowNetwork = false, false
	}
	return c
}

// LoadConfigFile parses a TOML project config file into a Config.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var raw struct {
		AllowIO        bool   `toml:"allow_io"`
		AllowNetwork   bool   `toml:"allow_network"`
		MaxExecutionMS int64  `toml:"max_execution_ms"`
		MaxMemoryBytes int64  `toml:"max_memory_bytes"`
		SandboxPolicy  string `toml:"sandbox_policy"`
		DebugOwnership bool   `toml:"debug_ownership"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return Config{
		AllowIO:          raw.AllowIO,
		AllowNetwork:     raw.AllowNetwork,
		MaxExecutionTime: time.Duration(raw.MaxExecutionMS) * time.Millisecond,
		MaxMemoryBytes:   raw.MaxMemoryBytes,
		SandboxPolicy:    SandboxPolicy(raw.SandboxPolicy),
		DebugOwnership:   raw.DebugOwnership,
	}, nil
}

// Capability is the permission/deadline state threaded to every native
// builtin call. AllowIO and AllowNetwork are independent flags, checked by
// whichever native needs them — a file builtin calls RequireIO, a
// socket/http builtin calls RequireNetwork, never both for the same check.
type Capability struct {
	AllowIO      bool
	AllowNetwork bool
	Deadline     time.Time
}

func (c *Capability) RequireIO() error {
	if !c.AllowIO {
		return diag.New(diag.SandboxDenied, "file IO is not permitted by the current sandbox policy", diag.Span{})
	}
	return nil
}

func (c *Capability) RequireNetwork() error {
	if !c.AllowNetwork {
		return diag.New(diag.SandboxDenied, "network access is not permitted by the current sandbox policy", diag.Span{})
	}
	return nil
}

// capContext is what actually gets threaded as the opaque `cap any` to
// every NativeFn.Fn call: the Capability above, plus a Caller so the
// higher-order intrinsics (map/filter/reduce, ...) can call back into
// whichever engine is running. A *capContext satisfies pkg/builtins.Caller
// and (via the embedded *Capability) exposes RequireIO/RequireNetwork to
// any native that type-asserts for them.
type capContext struct {
	*Capability
	caller builtins.Caller
}

func (c *capContext) CallValue(fn value.Value, args []value.Value) (value.Value, error) {
	return c.caller.CallValue(fn, args)
}

// NativeFunc is the host-callback shape DefineNative accepts: narrower than
// value.NativeFn.Fn's `cap any`, since a host embedder always receives a
// typed *Capability, never the raw opaque value the engines pass around.
type NativeFunc func(cap *Capability, args []value.Value) (value.Value, error)

// Runtime is an embeddable Atlas host.
type Runtime struct {
	cfg        Config
	natives    []*value.NativeFn
	enforceOwn bool
}

// New returns a Runtime with DefaultConfig.
func New() *Runtime { return WithConfig(DefaultConfig()) }

// WithConfig returns a Runtime configured with cfg, with every pkg/builtins
// native already registered.
func WithConfig(cfg Config) *Runtime {
	r := &Runtime{cfg: cfg.resolved(), enforceOwn: cfg.DebugOwnership}
	builtins.RegisterAll(func(n *value.NativeFn) { r.natives = append(r.natives, n) })
	return r
}

// DefineNative registers an additional host callback, invocable from Atlas
// source the same way any builtin is.
func (r *Runtime) DefineNative(name string, arity int, fn NativeFunc) {
	r.natives = append(r.natives, &value.NativeFn{
		Name:  name,
		Arity: arity,
		Fn: func(cap any, args []value.Value) (value.Value, error) {
			var c *Capability
			if cc, ok := cap.(*capContext); ok {
				c = cc.Capability
			}
			return fn(c, args)
		},
	})
}

func (r *Runtime) capability() *Capability {
	c := &Capability{AllowIO: r.cfg.AllowIO, AllowNetwork: r.cfg.AllowNetwork}
	if r.cfg.MaxExecutionTime > 0 {
		c.Deadline = time.Now().Add(r.cfg.MaxExecutionTime)
	}
	return c
}

func (r *Runtime) vmQuota() *vm.Quota {
	if r.cfg.MaxExecutionTime <= 0 {
		return nil
	}
	return &vm.Quota{Deadline: time.Now().Add(r.cfg.MaxExecutionTime)}
}

func (r *Runtime) interpQuota() *interp.Quota {
	if r.cfg.MaxExecutionTime <= 0 {
		return nil
	}
	return &interp.Quota{Deadline: time.Now().Add(r.cfg.MaxExecutionTime)}
}

func parseProgram(file, src string) (*ast.Program, error) {
	p := parser.New(file, src)
	prog, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return prog, nil
}

// Eval lexes, parses, compiles, and runs src on the VM engine.
func (r *Runtime) Eval(src string) (value.Value, error) {
	return r.EvalWithEngine(src, EngineVM)
}

// EvalWithEngine is Eval with an explicit engine choice. EngineInterp skips
// the compile step entirely and walks the AST directly — the shape
// parity tests use to run one program both ways.
func (r *Runtime) EvalWithEngine(src string, engine Engine) (value.Value, error) {
	prog, err := parseProgram("<eval>", src)
	if err != nil {
		return nil, err
	}
	if engine == EngineInterp {
		return r.runInterp(prog)
	}
	return r.runVM(prog)
}

// EvalFile reads path and evaluates it on the VM engine.
func (r *Runtime) EvalFile(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := parseProgram(path, string(data))
	if err != nil {
		return nil, err
	}
	return r.runVM(prog)
}

func (r *Runtime) runVM(prog *ast.Program) (value.Value, error) {
	bc, err := compiler.New("<eval>").Compile(prog)
	if err != nil {
		return nil, err
	}
	machine := vm.New(bc)
	for _, n := range r.natives {
		machine.DefineNative(n)
	}
	machine.SetCapability(&capContext{Capability: r.capability(), caller: machine})
	machine.SetQuota(r.vmQuota())
	machine.SetOwnershipEnforcer(ownership.New(r.enforceOwn))
	return machine.Run()
}

func (r *Runtime) runInterp(prog *ast.Program) (value.Value, error) {
	it := interp.New()
	for _, n := range r.natives {
		it.DefineNative(n)
	}
	it.SetCapability(&capContext{Capability: r.capability(), caller: it})
	it.SetQuota(r.interpQuota())
	it.SetOwnershipEnforcer(ownership.New(r.enforceOwn))
	return it.Run(prog)
}
