package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one cached read: an operation name followed by its
// parameters in a fixed order, e.g. ("transactions", "user42", "0", "10").
type Key []string

// NewKey builds a key from op and params. nil params become empty
// components, which make the key incomplete.
func NewKey(op string, params ...any) Key {
	k := make(Key, 0, len(params)+1)
	k = append(k, op)
	for _, p := range params {
		if p == nil {
			k = append(k, "")
			continue
		}
		k = append(k, fmt.Sprint(p))
	}
	return k
}

// Op is the operation name
func (k Key) Op() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Complete reports whether every component is known. Reads with an
// incomplete key never fetch.
func (k Key) Complete() bool {
	if len(k) == 0 {
		return false
	}
	for _, c := range k {
		if c == "" {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same components
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the leading components of k equal prefix
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

// ID is a map-safe form of the key. Each component is prefixed with its
// length, so user text such as a search term cannot make two keys collide.
func (k Key) ID() string {
	var b strings.Builder
	for _, c := range k {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}

func (k Key) String() string {
	return strings.Join(k, ":")
}
