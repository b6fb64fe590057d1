package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", models.KindOf(err), err)
		os.Exit(exitCode(err))
	}
}

// Exit codes by failure kind. Usage errors from cobra itself fall through to 1.
var exitCodes = []struct {
	err  error
	code int
}{
	{models.ErrValidationFailed, 2},
	{models.ErrNotFound, 3},
	{models.ErrPermissionDenied, 4},
	{models.ErrAlreadyCancelled, 5},
	{models.ErrAlreadyOnWaitlist, 5},
	{models.ErrGameNotOpen, 6},
	{models.ErrCapacityReached, 6},
	{models.ErrTokenExpired, 7},
	{models.ErrTokenAlreadyUsed, 7},
	{models.ErrStrikeLimit, 8},
	{models.ErrConflictLost, 9},
	{models.ErrDependencyUnavailable, 10},
}

func exitCode(err error) int {
	for _, c := range exitCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return 1
}
