package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/minesweep-relay/internal/protocol"
)

var (
	ErrNoMoveFunc    = errors.New("move() function is not defined")
	ErrScriptTimeout = errors.New("script timed out")
)

// Tile codes a script sees in view.tiles. Revealed tiles carry their
// neighbour count (0-8); a revealed bomb only appears after a loss.
const (
	CodeHidden  = -1
	CodeFlagged = -2
	CodeBomb    = -3
)

// LogEntry represents a single log message from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM wraps a goja runtime with sandbox restrictions and the autoplayer globals.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	callTimeout   time.Duration
	stopRequested bool
}

const (
	scriptInitTimeout  = 2 * time.Second
	defaultCallTimeout = 1 * time.Second
	interruptGrace     = 200 * time.Millisecond
)

// NewVM creates a sandboxed runtime. callTimeout bounds each move() call;
// zero selects one second.
func NewVM(callTimeout time.Duration) *VM {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	vm := &VM{
		runtime:     goja.New(),
		maxLogs:     500,
		callTimeout: callTimeout,
	}
	vm.injectGlobals()
	return vm
}

func (vm *VM) injectGlobals() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	// stop() makes the player quit after the current call returns.
	vm.runtime.Set("stop", func(call goja.FunctionCall) goja.Value {
		vm.stopRequested = true
		return goja.Undefined()
	})

	vm.runtime.Set("HIDDEN", CodeHidden)
	vm.runtime.Set("FLAGGED", CodeFlagged)
	vm.runtime.Set("BOMB", CodeBomb)

	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// Execute runs the script source once so it can define move().
func (vm *VM) Execute(source string) error {
	return vm.runWithTimeout(scriptInitTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasMoveFunc reports whether the script defined a callable move().
func (vm *VM) HasMoveFunc() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := goja.AssertFunction(vm.runtime.Get("move"))
	return ok
}

// CallMove calls move(view) and decodes the returned object into an action.
func (vm *VM) CallMove(view View) (protocol.Action, error) {
	var out protocol.Action
	err := vm.runWithTimeout(vm.callTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()

		fn := vm.runtime.Get("move")
		if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
			return ErrNoMoveFunc
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("move is not a function")
		}

		result, err := callable(goja.Undefined(), vm.runtime.ToValue(view.export()))
		if err != nil {
			return fmt.Errorf("move() error: %w", err)
		}
		out, err = decodeMove(vm.runtime, result)
		return err
	})
	return out, err
}

// IsStopRequested returns true if stop() was called from the script.
func (vm *VM) IsStopRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stopRequested
}

// GetLogs returns a copy of the current log buffer.
func (vm *VM) GetLogs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		vm.runtime.Interrupt("script execution timeout")
		select {
		case err := <-done:
			vm.runtime.ClearInterrupt()
			if err != nil {
				return fmt.Errorf("%w: %w", ErrScriptTimeout, err)
			}
			return ErrScriptTimeout
		case <-time.After(interruptGrace):
			return ErrScriptTimeout
		}
	}
}
