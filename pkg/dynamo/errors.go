package dynamo

import (
	stderrors "errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/notewellhq/notewell-backend/pkg/errors"
)

// IsConditionalCheckFailed reports whether the error is a condition expression
// miss, either on a single-item write or inside a cancelled transaction.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if stderrors.As(err, &ccf) {
		return true
	}
	var tcx *types.TransactionCanceledException
	if stderrors.As(err, &tcx) {
		for _, reason := range tcx.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func isThrottle(err error) bool {
	var ptx *types.ProvisionedThroughputExceededException
	if stderrors.As(err, &ptx) {
		return true
	}
	var rle *types.RequestLimitExceeded
	if stderrors.As(err, &rle) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ThrottlingError":
			return true
		}
	}
	return false
}

// WrapError classifies a DynamoDB SDK error into a coded error. Condition
// misses become conflicts, throttles become retryable rate limits, everything
// else is a dependency failure.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	switch {
	case IsConditionalCheckFailed(err):
		return errors.Wrap(errors.CodeConflict, err, message)
	case isThrottle(err):
		return errors.Wrap(errors.CodeRateLimit, err, message)
	default:
		return errors.Wrap(errors.CodeDependency, err, message)
	}
}
