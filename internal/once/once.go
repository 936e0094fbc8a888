// Package once records which operations an owner has already performed so
// repeated setup calls become no-ops.
package once

import "reflect"

// History is the per-owner record of executed operations. The zero value is
// ready to use. It is not safe for concurrent use; owners call it during
// synchronous setup.
type History struct {
	ran map[string][][]any
}

// Do runs fn the first time op is requested. It reports whether fn ran.
func (h *History) Do(op string, fn func() error) (bool, error) {
	return h.DoUnique(op, nil, fn)
}

// DoUnique runs fn unless op already ran with a key equal to key. Keys are
// compared element-wise by value. An empty key makes it equivalent to Do.
func (h *History) DoUnique(op string, key []any, fn func() error) (bool, error) {
	if h.Ran(op, key) {
		return false, nil
	}
	if h.ran == nil {
		h.ran = make(map[string][][]any)
	}
	h.ran[op] = append(h.ran[op], append([]any(nil), key...))
	return true, fn()
}

// Ran reports whether op already ran with key.
func (h *History) Ran(op string, key []any) bool {
	for _, prior := range h.ran[op] {
		if equalKeys(prior, key) {
			return true
		}
	}
	return false
}

// Count returns how many distinct keys op ran with.
func (h *History) Count(op string) int {
	return len(h.ran[op])
}

func equalKeys(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Selector designates which arguments of an operation form its uniqueness
// key: positional slots by index and named arguments by name.
type Selector struct {
	Positions []int
	Names     []string
}

// Key extracts the designated values. Missing slots yield nil.
func (s Selector) Key(args []any, named map[string]any) []any {
	key := make([]any, 0, len(s.Positions)+len(s.Names))
	for _, pos := range s.Positions {
		var v any
		if pos >= 0 && pos < len(args) {
			v = args[pos]
		}
		key = append(key, v)
	}
	for _, name := range s.Names {
		key = append(key, named[name])
	}
	return key
}
