package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/claude-runner/claude-runner/pkg/config"
)

// genericMask replaces matches of custom patterns that declare no
// replacement of their own.
const genericMask = "__MASKED__"

// CompiledPattern is one ready-to-apply masking rule.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

type patternSpec struct {
	name        string
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the ordered default rule set. The PEM rule runs
// first so keyed rules do not chew through a key body line by line.
// Deliberately absent: email addresses and bare base64 runs, which are
// everywhere in legitimate agent output (commit authors, content
// hashes, lockfiles).
var builtinPatterns = []patternSpec{
	{
		name:        "pem_block",
		pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
		replacement: "__MASKED_PEM_BLOCK__",
		description: "PEM-encoded keys and certificates",
	},
	{
		name:        "provider_key",
		pattern:     `\bsk-[A-Za-z0-9_\-]{20,}\b`,
		replacement: "__MASKED_PROVIDER_KEY__",
		description: "LLM provider API keys",
	},
	{
		name:        "aws_access_key",
		pattern:     `\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`,
		replacement: "__MASKED_AWS_ACCESS_KEY__",
		description: "AWS access key ids",
	},
	{
		name:        "github_token",
		pattern:     `\bgh[pousr]_[A-Za-z0-9]{36,}\b`,
		replacement: "__MASKED_GITHUB_TOKEN__",
		description: "GitHub tokens",
	},
	{
		name:        "slack_token",
		pattern:     `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`,
		replacement: "__MASKED_SLACK_TOKEN__",
		description: "Slack tokens",
	},
	{
		name:        "ssh_key",
		pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]{40,}`,
		replacement: "__MASKED_SSH_KEY__",
		description: "SSH public keys",
	},
	{
		name:        "api_key",
		pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`,
		replacement: "api_key=__MASKED_API_KEY__",
		description: "API key assignments",
	},
	{
		name:        "secret_key",
		pattern:     `(?i)(?:secret[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: "secret_key=__MASKED_SECRET_KEY__",
		description: "Secret key assignments",
	},
	{
		name:        "private_key",
		pattern:     `(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: "private_key=__MASKED_PRIVATE_KEY__",
		description: "Private key assignments",
	},
	{
		name:        "aws_secret_key",
		pattern:     `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`,
		replacement: "aws_secret_access_key=__MASKED_AWS_SECRET_KEY__",
		description: "AWS secret keys",
	},
	{
		name:        "token",
		pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: "token=__MASKED_TOKEN__",
		description: "Access token assignments",
	},
	{
		name:        "password",
		pattern:     `(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
		replacement: "password=__MASKED_PASSWORD__",
		description: "Password assignments",
	},
}

func compileBuiltins() []*CompiledPattern {
	out := make([]*CompiledPattern, 0, len(builtinPatterns))
	for _, spec := range builtinPatterns {
		re, err := regexp.Compile(spec.pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", spec.name, "error", err)
			continue
		}
		out = append(out, &CompiledPattern{
			Name:        spec.name,
			Regex:       re,
			Replacement: spec.replacement,
			Description: spec.description,
		})
	}
	return out
}

// compileCustom compiles user-supplied patterns, keyed "custom:{index}"
// for log messages.
func compileCustom(specs []config.MaskPattern) []*CompiledPattern {
	var out []*CompiledPattern
	for i, spec := range specs {
		name := fmt.Sprintf("custom:%d", i)
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			slog.Error("Failed to compile custom masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		replacement := spec.Replacement
		if replacement == "" {
			replacement = genericMask
		}
		out = append(out, &CompiledPattern{
			Name:        name,
			Regex:       re,
			Replacement: replacement,
			Description: "user-supplied",
		})
	}
	return out
}
