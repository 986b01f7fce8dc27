package schema

import "fmt"

// ShapingError reports a request or result that could not be matched against
// its registered shape. It carries the operation or channel name and the
// offending payload so callers can diagnose without string parsing.
type ShapingError struct {
	Callname string
	Channel  string
	Data     any
	Err      error
}

func (e *ShapingError) Error() string {
	switch {
	case e.Channel != "":
		return fmt.Sprintf("shaping failed on channel %q: %v (data: %v)", e.Channel, e.Err, e.Data)
	default:
		return fmt.Sprintf("shaping failed for call %q: %v (data: %v)", e.Callname, e.Err, e.Data)
	}
}

func (e *ShapingError) Unwrap() error { return e.Err }
