package stage

import "fmt"

// Stage names in pipeline order.
const (
	Extract  = "extract"
	Generate = "generate"
	Mix      = "mix"
)

var order = []string{Extract, Generate, Mix}

// Order returns the stage names in execution order.
func Order() []string {
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// First is the stage every workflow starts with.
func First() string {
	return order[0]
}

// Last is the stage whose result is the workflow result.
func Last() string {
	return order[len(order)-1]
}

// Index returns the position of name in the pipeline or -1.
func Index(name string) int {
	for i, candidate := range order {
		if candidate == name {
			return i
		}
	}
	return -1
}

// Valid reports whether name is a pipeline stage.
func Valid(name string) bool {
	return Index(name) >= 0
}

// Next returns the stage following name. ok is false for the last stage and
// for unknown names.
func Next(name string) (next string, ok bool) {
	idx := Index(name)
	if idx < 0 || idx == len(order)-1 {
		return "", false
	}
	return order[idx+1], true
}

// Previous returns the stage preceding name. ok is false for the first stage.
func Previous(name string) (prev string, ok bool) {
	idx := Index(name)
	if idx <= 0 {
		return "", false
	}
	return order[idx-1], true
}

func checkName(name string) error {
	if !Valid(name) {
		return fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	return nil
}
