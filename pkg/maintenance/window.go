// Package maintenance adds an optional gate on top of the restart
// schedule: a small JavaScript function, evaluated once per tick, that
// decides whether a restart is allowed to fire right now. It exists
// purely to let operators express "never during the Tuesday backup
// window" style rules without a code change; with no script configured
// every tick is allowed.
package maintenance

import (
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
)

// Window evaluates a user-supplied "allowed(hour, weekday)" function to gate
// restarts. A nil *Window (no script configured) always allows.
type Window struct {
	vm      *goja.Runtime
	allowed goja.Callable
}

// Load compiles the script at path. The script must define a top-level
// function `allowed(hour, weekday)` returning a boolean; hour is 0-23 in
// UTC and weekday is 0 (Sunday) through 6.
func Load(path string) (*Window, error) {
	if path == "" {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading maintenance script %s: %w", path, err)
	}

	vm := goja.New()
	if _, err := vm.RunString(string(content)); err != nil {
		return nil, fmt.Errorf("maintenance script %s: %w", path, err)
	}

	fnVal := vm.Get("allowed")
	if fnVal == nil || goja.IsUndefined(fnVal) {
		return nil, fmt.Errorf("maintenance script %s does not define allowed(hour, weekday)", path)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("maintenance script %s: allowed is not a function", path)
	}

	return &Window{vm: vm, allowed: fn}, nil
}

// Allows reports whether a restart may start at t. A nil Window always
// allows, so callers don't need to special-case the unconfigured case.
func (w *Window) Allows(t time.Time) bool {
	if w == nil {
		return true
	}

	t = t.UTC()
	result, err := w.allowed(goja.Undefined(), w.vm.ToValue(t.Hour()), w.vm.ToValue(int(t.Weekday())))
	if err != nil {
		return true
	}
	return result.ToBoolean()
}
