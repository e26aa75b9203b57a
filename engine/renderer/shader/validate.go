package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// ErrInvalidWGSL is wrapped by every error returned from Validate.
var ErrInvalidWGSL = errors.New("invalid WGSL")

// Validate parses, lowers and validates WGSL source without touching a GPU device.
//
// Parameters:
//   - source: the complete, pre-processed WGSL source
//
// Returns:
//   - error: a wrapped ErrInvalidWGSL describing the first failing stage, nil if the source is valid
func Validate(source string) error {
	ast, err := naga.Parse(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWGSL, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWGSL, err)
	}
	problems, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWGSL, err)
	}
	if len(problems) > 0 {
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			msgs = append(msgs, p.Error())
		}
		return fmt.Errorf("%w: %s", ErrInvalidWGSL, strings.Join(msgs, "; "))
	}
	return nil
}
