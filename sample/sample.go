// Package sample describes the element formats a plugin buffer can carry and
// the descriptor used to negotiate buffer shapes between host and plugin.
package sample

import (
	"fmt"
	"strings"
	"sync"
)

type Type int

const (
	UINT8 Type = iota
	UINT16
	UINT16X2
	INT8
	INT16
	INT16X2
	FLOAT32
	FLOAT32X2
	INT32
	INT32X2
	UINT15

	NumFormats int = iota
)

var names = [...]string{
	"UINT8", "UINT16", "UINT16X2", "INT8", "INT16", "INT16X2",
	"FLOAT32", "FLOAT32X2", "INT32", "INT32X2", "UINT15",
}

var (
	bytes_table []int
	table_once  sync.Once
)

// 15 bit samples are stored in 16 bits.
func initTable() {
	bytes_table = make([]int, NumFormats)
	bytes_table[UINT8] = 1
	bytes_table[UINT16] = 2
	bytes_table[UINT16X2] = 4
	bytes_table[INT8] = 1
	bytes_table[INT16] = 2
	bytes_table[INT16X2] = 4
	bytes_table[FLOAT32] = 4
	bytes_table[FLOAT32X2] = 8
	bytes_table[INT32] = 4
	bytes_table[INT32X2] = 8
	bytes_table[UINT15] = 2
}

func (t Type) Valid() bool {
	return t >= 0 && int(t) < NumFormats
}

// Lookup returns the byte width of one element of format t.
func Lookup(t Type) (int, bool) {
	if !t.Valid() {
		return 0, false
	}
	table_once.Do(initTable)
	return bytes_table[t], true
}

// BytesPerSample panics on an unknown tag, use Lookup at API boundaries.
func BytesPerSample(t Type) int {
	n, ok := Lookup(t)
	if !ok {
		panic(fmt.Sprintf("sample: unknown sample type %d", int(t)))
	}
	return n
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return names[t]
}

func ParseType(name string) (Type, error) {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sample type %q", name)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
