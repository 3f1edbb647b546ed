package bedrock

import (
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// retryableCodes are Bedrock Runtime error codes worth another attempt
var retryableCodes = map[string]struct{}{
	"ThrottlingException":         {},
	"ServiceUnavailableException": {},
	"InternalServerException":     {},
	"ModelNotReadyException":      {},
	"ModelTimeoutException":       {},
}

// IsRetryable reports whether a failed Bedrock Runtime call may succeed when
// repeated: throttling, server faults and 429 / 5xx responses. Other API
// errors such as ValidationException or AccessDeniedException are final.
// Errors that carry no API information, like transport failures, are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if status := respErr.HTTPStatusCode(); status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return true
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := retryableCodes[apiErr.ErrorCode()]; ok {
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	return respErr == nil
}
