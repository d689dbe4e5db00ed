package recovery

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
)

// Category buckets an operation error for recovery dispatch.
type Category string

const (
	CategoryTransient  Category = "TRANSIENT"
	CategoryRateLimit  Category = "RATE_LIMIT"
	CategoryTimeout    Category = "TIMEOUT"
	CategoryContext    Category = "CONTEXT"
	CategoryPermission Category = "PERMISSION"
	CategoryValidation Category = "VALIDATION"
	CategoryResource   Category = "RESOURCE"
	CategoryInternal   Category = "INTERNAL"
	CategoryPermanent  Category = "PERMANENT"
)

var rateLimitIndicators = []string{
	"rate limit",
	"too many requests",
	"429",
	"quota exceeded",
	"overloaded",
}

var contextIndicators = []string{
	"context length",
	"context window",
	"maximum context",
	"token limit",
	"too many tokens",
	"prompt is too long",
	"context_length_exceeded",
}

var timeoutIndicators = []string{
	"timed out",
	"timeout",
	"deadline exceeded",
}

var permissionIndicators = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
}

var permanentIndicators = []string{
	"unauthorized",
	"authentication",
	"invalid api key",
	"api key",
	"forbidden",
	"401",
	"403",
	"billing",
}

var resourceIndicators = []string{
	"no such file",
	"file does not exist",
	"enoent",
	"no space left",
	"executable file not found",
}

var validationIndicators = []string{
	"invalid params",
	"invalid request",
	"parse error",
	"failed to parse",
	"unmarshal",
	"malformed",
}

var internalIndicators = []string{
	"internal error",
	"internal server error",
	"500",
	"502",
	"503",
	"504",
}

var connectionIndicators = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"temporarily unavailable",
}

// ClassifyError buckets an error. Unrecognized errors are PERMANENT:
// retrying something we cannot name is how loops wedge.
func ClassifyError(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if errors.Is(err, os.ErrPermission) {
		return CategoryPermission
	}
	if errors.Is(err, os.ErrNotExist) {
		return CategoryResource
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rateLimitIndicators):
		return CategoryRateLimit
	case containsAny(msg, contextIndicators):
		return CategoryContext
	case containsAny(msg, timeoutIndicators):
		return CategoryTimeout
	case containsAny(msg, permissionIndicators):
		return CategoryPermission
	case containsAny(msg, permanentIndicators):
		return CategoryPermanent
	case containsAny(msg, resourceIndicators):
		return CategoryResource
	case containsAny(msg, validationIndicators):
		return CategoryValidation
	case containsAny(msg, internalIndicators):
		return CategoryInternal
	case containsAny(msg, connectionIndicators):
		return CategoryTransient
	}
	return CategoryPermanent
}

func containsAny(msg string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
