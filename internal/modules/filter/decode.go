package filter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errNotNumber  = errors.New("not a number")
	errOutOfRange = errors.New("out of range")
	errNotInteger = errors.New("not an integer")
	errNegative   = errors.New("negative")
)

// isMissing reports whether a cell holds no value: empty or a NaN marker.
func isMissing(cell string) bool {
	s := strings.TrimSpace(cell)
	return s == "" || strings.EqualFold(s, "nan")
}

// parseRating decodes a rating cell. Missing values return rated=false.
func parseRating(cell string) (rating float64, rated bool, err error) {
	if isMissing(cell) {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("rating %q: %w", cell, errNotNumber)
	}
	if v < MinRating || v > MaxRating {
		return 0, false, fmt.Errorf("rating %v: %w [0, 5]", v, errOutOfRange)
	}
	return v, true, nil
}

// parseCount decodes a non-negative integer count. Thousands separators and
// integral floats ("2000.0") are accepted. Missing values decode to 0.
func parseCount(cell string) (int64, error) {
	if isMissing(cell) {
		return 0, nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("count %q: %w", cell, errNegative)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, fmt.Errorf("count %q: %w", cell, errNotNumber)
	}
	if f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, fmt.Errorf("count %q: %w", cell, errNotInteger)
	}
	if f < 0 {
		return 0, fmt.Errorf("count %q: %w", cell, errNegative)
	}
	return int64(f), nil
}

// parseOptionalFloat decodes a float cell, returning ok=false when missing.
func parseOptionalFloat(cell string) (v float64, ok bool, err error) {
	if isMissing(cell) {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("value %q: %w", cell, errNotNumber)
	}
	return v, true, nil
}
