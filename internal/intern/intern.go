// Package intern implements the VM's string-interning table: a hash table
// mapping string contents to a canonical *value.ObjString handle, so that
// content equality implies handle equality.
package intern

import (
	"hash/fnv"

	"loxvm/internal/value"
)

// bucketCount is the number of collision chains the table hashes into.
// Kept well below the uint32 hash space so distinct hashes routinely share
// a chain, which is what makes storing each ObjString's Hash worthwhile:
// a chain walk compares the cheap uint32 first and only falls through to
// the string comparison on an actual hash match.
const bucketCount = 256

// Table is process-wide state for one VM instance: initialized at startup,
// extended by both the compiler (for global variable names and string
// literals) and the VM (for runtime string concatenation), and discarded
// wholesale at VM teardown along with the heap object list it feeds.
type Table struct {
	buckets [bucketCount][]*value.ObjString
}

// New returns an empty interning table.
func New() *Table {
	return &Table{}
}

func hashOf(chars string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chars))
	return h.Sum32()
}

// Intern returns the canonical *value.ObjString for chars, allocating and
// registering a new one on first sight. objects is the VM's heap-object
// teardown list head; a freshly allocated string is linked onto it and the
// (possibly updated) head is returned.
func (t *Table) Intern(chars string, objects value.Object) (*value.ObjString, value.Object) {
	h := hashOf(chars)
	chain := h % bucketCount
	for _, s := range t.buckets[chain] {
		if s.Hash == h && s.Chars == chars {
			return s, objects
		}
	}
	s := &value.ObjString{Chars: chars, Hash: h}
	s.SetNext(objects)
	t.buckets[chain] = append(t.buckets[chain], s)
	return s, s
}

// Len reports how many distinct strings are currently interned.
func (t *Table) Len() int {
	n := 0
	for _, bucket := range t.buckets {
		n += len(bucket)
	}
	return n
}
