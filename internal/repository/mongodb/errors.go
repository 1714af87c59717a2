package mongodb

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
)

// Server codes that mean "try again later" rather than "this write is wrong".
var capacityCodes = []int{
	16500, // RequestRateTooLarge (Cosmos DB API for MongoDB)
	50,    // MaxTimeMSExpired
	262,   // ExceededTimeLimit
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
	24,    // LockTimeout
	46,    // LockBusy
}

const writeConflictCode = 112

// classify maps driver errors onto the error kinds of the core.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorCode(writeConflictCode) {
			return fmt.Errorf("%s: %w: %v", op, errs.ErrConcurrentUpdate, err)
		}
		for _, code := range capacityCodes {
			if serverErr.HasErrorCode(code) {
				return &errs.TransientError{Op: op, Err: err}
			}
		}
		if serverErr.HasErrorLabel("TransientTransactionError") {
			return &errs.TransientError{Op: op, Err: err}
		}
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return &errs.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
