package functions

import (
	"errors"
	"fmt"
)

var errZeroStep = errors.New("for: step must not be zero")

func errOutOfRange(n int64) error {
	return fmt.Errorf("position %d out of range", n)
}
