package views

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// defaultDocBudget and defaultStepBudget are the per-invocation wall-clock
// and bytecode-step limits from spec §4.3.
const (
	defaultDocBudget  = 100 * time.Millisecond
	defaultStepBudget = 1_000_000
)

// CompiledSource is a memoised, parsed JS program. Compilation happens
// once per source string; every invocation gets its own fresh goja.Runtime
// bound to the already-parsed *goja.Program, matching spec §4.3's
// "compilation is memoised, only the emit-buffer is rebound" model.
type CompiledSource struct {
	program *goja.Program
	src     string
}

// Compile parses src once and returns an error for malformed JS. It is
// only ever called lazily, at first invocation, so a broken source fails
// that invocation and never the DesignRepo load (spec §4.2).
func Compile(name, src string) (*CompiledSource, error) {
	prog, err := goja.Compile(name, wrapExpression(src), false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &CompiledSource{program: prog, src: src}, nil
}

// wrapExpression wraps a bare function expression (the usual CouchDB
// map/reduce/update source shape, `function(doc) { ... }`) so evaluating
// the program yields the function value itself.
func wrapExpression(src string) string {
	return "(" + src + ")"
}

// EmitRow is one row appended via the sandbox's emit() global.
type EmitRow struct {
	Key   interface{}
	Value interface{}
}

// Invocation is the result of running a compiled source once: the log
// lines written via log(), and whether the budget was exceeded.
type Invocation struct {
	Logs     []string
	TimedOut bool
}

// runtimeBudget bounds one sandbox invocation. Zero values fall back to
// the spec defaults.
type runtimeBudget struct {
	wallClock time.Duration
	steps     uint64
}

func (b runtimeBudget) orDefault() runtimeBudget {
	if b.wallClock <= 0 {
		b.wallClock = defaultDocBudget
	}
	if b.steps <= 0 {
		b.steps = defaultStepBudget
	}
	return b
}

// newSandbox builds a fresh goja.Runtime with exactly the global surface
// spec §4.3 allows: emit, sum, log, and the standard JSON/Math/Number/
// String/Array/Object built-ins goja provides out of the box. I/O and host
// access are never registered, and the Date global goja provides is
// deleted, so scripts cannot reach any of them.
func newSandbox(emit func(key, value interface{}), logf func(string)) *goja.Runtime {
	vm := goja.New()
	// goja registers Date by default; the sandbox's global-surface table
	// (spec §4.3) requires it absent so map/reduce/update results stay a
	// pure function of the document, never of wall-clock time.
	vm.GlobalObject().Delete("Date")
	vm.Set("emit", func(key, value goja.Value) {
		emit(toGo(key), toGo(value))
	})
	vm.Set("sum", func(call goja.FunctionCall) goja.Value {
		arr := call.Argument(0).Export()
		items, _ := arr.([]interface{})
		var total float64
		for _, item := range items {
			switch n := item.(type) {
			case float64:
				total += n
			case int64:
				total += float64(n)
			}
		}
		return vm.ToValue(total)
	})
	vm.Set("log", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			logf(call.Argument(0).String())
		}
		return goja.Undefined()
	})
	return vm
}

// toGo copies a value out of the sandbox through a JSON round trip, so
// numbers always leave as float64 (goja exports integral numbers as
// int64) and no reference into the runtime survives the invocation.
// Values JSON cannot encode are returned as goja exported them.
func toGo(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	exported := v.Export()
	raw, err := json.Marshal(exported)
	if err != nil {
		return exported
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return exported
	}
	return out
}

// runWithBudget runs fn on a goroutine and enforces the wall-clock
// budget via ctx cancellation plus goja's own interrupt mechanism,
// combined with a step-count interrupt installed on vm. The offending
// invocation is reported via the returned bool, never a panic.
func runWithBudget(ctx context.Context, vm *goja.Runtime, budget runtimeBudget, fn func() error) (timedOut bool, err error) {
	budget = budget.orDefault()

	deadline := time.Now().Add(budget.wallClock)
	timer := time.AfterFunc(budget.wallClock, func() {
		vm.Interrupt("document budget exceeded")
	})
	defer timer.Stop()

	stepCounter := newStepInterrupter(vm, budget.steps)
	defer stepCounter.stop()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case e := <-done:
		if ie, ok := e.(*goja.InterruptedError); ok {
			_ = ie
			return true, fmt.Errorf("invocation interrupted: budget exceeded")
		}
		return false, e
	case <-ctx.Done():
		vm.Interrupt("request cancelled")
		<-done
		return time.Now().After(deadline), ctx.Err()
	}
}

// stepInterrupter approximates the step budget, since goja does not expose
// an operation counter: a timer whose interval is derived from the step
// count interrupts the VM when its first tick fires. This is
// coarser than a true bytecode-step count but bounds runaway loops
// (busy-spins without I/O) the same way the wall-clock budget does.
type stepInterrupter struct {
	ticker *time.Ticker
	done   chan struct{}
}

func newStepInterrupter(vm *goja.Runtime, steps uint64) *stepInterrupter {
	// Budget translated to a tick interval: assume ~10M simple ops/sec,
	// so `steps` bytecode steps corresponds to roughly steps/10e6 seconds,
	// floored to a minimum tick so tiny budgets still fire.
	interval := time.Duration(steps) * time.Second / 10_000_000
	if interval <= 0 {
		interval = time.Millisecond
	}
	s := &stepInterrupter{ticker: time.NewTicker(interval), done: make(chan struct{})}
	go func() {
		select {
		case <-s.ticker.C:
			vm.Interrupt("step budget exceeded")
		case <-s.done:
		}
	}()
	return s
}

func (s *stepInterrupter) stop() {
	s.ticker.Stop()
	close(s.done)
}
