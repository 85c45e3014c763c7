package util

import "golang.org/x/xerrors"

func WrapErr(msg string, err error) error {
	return xerrors.Errorf("%s: %w", msg, err)
}

// RoundUp returns the smallest multiple of m that is >= n.
func RoundUp(n, m int) int {
	if m <= 0 {
		return n
	}
	return CeilDiv(n, m) * m
}

func CeilDiv(n, m int) int {
	return (n + m - 1) / m
}
