package probe

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/sessionhold/pkg/session"
)

// checkTimeout bounds a single expression evaluation.
const checkTimeout = 250 * time.Millisecond

// Check decides whether a normalized response counts as healthy.
//
// Expressions are JavaScript evaluated with these globals:
//
//	status       number
//	body         string
//	headers      object, lower-cased names, first value only
//	contentType  string
//
// e.g. `status == 200 && JSON.parse(body).ok === true`.
type Check struct {
	source  string
	program *goja.Program
}

// CompileCheck compiles expr. An empty expr yields the default check,
// which accepts any status in [200, 400).
func CompileCheck(expr string) (*Check, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Check{}, nil
	}

	program, err := goja.Compile("expect", expr, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expect %q: %w", expr, err)
	}
	return &Check{source: expr, program: program}, nil
}

// String returns the expression source, or a description of the default.
func (c *Check) String() string {
	if c.program == nil {
		return "200 <= status < 400"
	}
	return c.source
}

// Eval runs the check against r. Each call uses a fresh runtime, so a Check
// may be shared between goroutines.
func (c *Check) Eval(r *session.Response) (bool, error) {
	if c.program == nil {
		return r.StatusCode() >= 200 && r.StatusCode() < 400, nil
	}

	vm := goja.New()
	headers := make(map[string]any, len(r.Headers()))
	for _, h := range r.Headers() {
		name := strings.ToLower(h.Name)
		if _, ok := headers[name]; !ok {
			headers[name] = h.Value
		}
	}

	for name, v := range map[string]any{
		"status":      r.StatusCode(),
		"body":        r.Text(),
		"headers":     headers,
		"contentType": r.ContentType(),
	} {
		if err := vm.Set(name, v); err != nil {
			return false, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	timer := time.AfterFunc(checkTimeout, func() {
		vm.Interrupt("expect timed out")
	})
	defer timer.Stop()

	v, err := vm.RunProgram(c.program)
	if err != nil {
		return false, fmt.Errorf("expect %q: %w", c.source, err)
	}
	return v.ToBoolean(), nil
}
