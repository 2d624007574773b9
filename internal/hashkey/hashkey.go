// Package hashkey derives the deterministic content keys used as idempotent
// upsert keys for snapshot entities.
//
// Every hash starts from 7 and folds values in with a multiplier of 31 under
// 32-bit two's-complement wraparound. Strings are folded per UTF-16 code unit,
// numbers by value, and slices element by element. A nil element folds in 0.
package hashkey

import (
	"fmt"
	"strconv"
	"unicode/utf16"
)

const (
	seed       int32 = 7
	multiplier int32 = 31
)

// String hashes s per UTF-16 code unit.
func String(s string) int32 {
	h := seed
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*multiplier + int32(c)
	}
	return h
}

// Number folds n into the seed.
func Number(n int64) int32 {
	return seed*multiplier + int32(n)
}

// Parts hashes an ordered sequence, composing each element with Of.
func Parts(parts ...any) int32 {
	h := seed
	for _, p := range parts {
		h = h*multiplier + Of(p)
	}
	return h
}

// Of hashes v according to its dynamic type. Unsupported types hash their
// fmt representation so that callers never silently collapse to the seed.
func Of(v any) int32 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return String(x)
	case *string:
		if x == nil {
			return 0
		}
		return String(*x)
	case int:
		return Number(int64(x))
	case int32:
		return Number(int64(x))
	case int64:
		return Number(x)
	case float64:
		return Number(int64(x))
	case bool:
		if x {
			return Number(1)
		}
		return Number(0)
	case []any:
		return Parts(x...)
	case []string:
		parts := make([]any, len(x))
		for i, s := range x {
			parts[i] = s
		}
		return Parts(parts...)
	default:
		return String(fmt.Sprint(x))
	}
}

// Key formats a content key as <snapshotID>:<tag>:<hash>.
func Key(snapshotID int64, tag string, h int32) string {
	return strconv.FormatInt(snapshotID, 10) + ":" + tag + ":" + strconv.FormatInt(int64(h), 10)
}

// Location renders a source position the way content keys embed it.
func Location(line, column int) string {
	return strconv.Itoa(line) + "-" + strconv.Itoa(column)
}
