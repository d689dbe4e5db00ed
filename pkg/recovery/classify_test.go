package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryPermanent},
		{"deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"wrapped deadline", fmt.Errorf("agent turn failed: %w", context.DeadlineExceeded), CategoryTimeout},
		{"permission sentinel", fmt.Errorf("open state: %w", os.ErrPermission), CategoryPermission},
		{"not exist sentinel", fmt.Errorf("read plan: %w", os.ErrNotExist), CategoryResource},
		{"eof", io.EOF, CategoryTransient},
		{"unexpected eof", io.ErrUnexpectedEOF, CategoryTransient},
		{"net timeout", &net.DNSError{Err: "lookup", IsTimeout: true}, CategoryTimeout},
		{"net failure", &net.DNSError{Err: "lookup", IsTimeout: false}, CategoryTransient},
		{"rate limit text", errors.New("API error 429: too many requests"), CategoryRateLimit},
		{"quota text", errors.New("monthly quota exceeded"), CategoryRateLimit},
		{"context window", errors.New("prompt exceeds context window"), CategoryContext},
		{"token limit", errors.New("token limit reached for model"), CategoryContext},
		{"timed out text", errors.New("operation timed out after 90s"), CategoryTimeout},
		{"permission text", errors.New("mkdir /etc/x: permission denied"), CategoryPermission},
		{"auth text", errors.New("invalid api key provided"), CategoryPermanent},
		{"forbidden text", errors.New("server returned 403 forbidden"), CategoryPermanent},
		{"missing file text", errors.New("stat main.go: no such file or directory"), CategoryResource},
		{"binary missing", errors.New(`exec: "claude": executable file not found in $PATH`), CategoryResource},
		{"parse text", errors.New("failed to parse plan output"), CategoryValidation},
		{"unmarshal text", errors.New("json unmarshal: unexpected end of input"), CategoryValidation},
		{"internal text", errors.New("upstream internal server error"), CategoryInternal},
		{"bad gateway", errors.New("HTTP 502 from gateway"), CategoryInternal},
		{"connection refused", errors.New("dial tcp: connection refused"), CategoryTransient},
		{"broken pipe", errors.New("write: broken pipe"), CategoryTransient},
		{"unknown", errors.New("something nobody has seen before"), CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		cat  Category
		want Strategy
	}{
		{CategoryTransient, StrategyRetryBackoff},
		{CategoryTimeout, StrategyRetryBackoff},
		{CategoryInternal, StrategyRetryBackoff},
		{CategoryRateLimit, StrategyRetryExtended},
		{CategoryContext, StrategyTrimContext},
		{CategoryResource, StrategySkipStep},
		{CategoryValidation, StrategyEscalate},
		{CategoryPermission, StrategyAbort},
		{CategoryPermanent, StrategyAbort},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			assert.Equal(t, tt.want, strategyFor(tt.cat))
		})
	}
}
