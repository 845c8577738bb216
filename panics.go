package wranglz

import (
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// panicError wraps a recovered panic value so it can travel through the
// normal error path. The sanitized message is safe to log even when the
// panic value itself is not printable.
type panicError struct {
	value     any
	sanitized string
}

func (p *panicError) Error() string {
	return p.sanitized
}

// recoverFromPanic converts a panic inside a transformation into an *Error
// attributed to the named component. Installed with defer by every Apply
// implementation.
func recoverFromPanic(result *cty.Value, err *error, name Name, input cty.Value) {
	r := recover()
	if r == nil {
		return
	}
	*result = cty.NilVal
	*err = &Error{
		Path:      []Name{name},
		InputData: input,
		Err: &panicError{
			value:     r,
			sanitized: fmt.Sprintf("panic occurred: %v", r),
		},
		Timestamp: time.Now(),
	}
}
