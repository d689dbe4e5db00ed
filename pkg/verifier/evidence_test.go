package verifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEvidenceRoundTrip(t *testing.T) {
	response := strings.Join([]string{
		"I created `api/users.js` and modified `api/routes.js`.",
		"Dependency bumped to version 2.1.3, docs at https://docs.example.com/guide and www.npmjs.com.",
		"I also created placeholder.txt as a stub and added example.config.js for reference.",
		"The cache at `C:/temp/cache.db` is ignored.",
		"```js",
		"module.exports = function users() {}",
		"```",
		"Run `npm test` to verify.",
		"- [x] create user model",
		"- [x] wire routes",
		"- [ ] write docs",
	}, "\n")

	ev := parseEvidence(response, 200)

	assert.Equal(t, []string{"api/users.js", "api/routes.js"}, ev.Files)
	assert.Equal(t, []string{"npm test"}, ev.TestCommands)
	assert.Empty(t, ev.BuildCommands)
	assert.Len(t, ev.Snippets, 1)
	assert.Contains(t, ev.Snippets[0], "module.exports")
	assert.Equal(t, 2, ev.Confirmations)
}

func TestParseEvidenceVerbPhrases(t *testing.T) {
	ev := parseEvidence("I wrote the new handler in server.go and updated the schema in db/init.sql accordingly.", 200)
	assert.Contains(t, ev.Files, "server.go")
	assert.Contains(t, ev.Files, "db/init.sql")
}

func TestParseEvidenceSnippetCapped(t *testing.T) {
	block := "```\n" + strings.Repeat("x", 500) + "\n```"
	ev := parseEvidence(block, 200)
	assert.Len(t, ev.Snippets, 1)
	assert.Len(t, ev.Snippets[0], 200)
}

func TestParseEvidenceCommandsFromCodeOnly(t *testing.T) {
	response := strings.Join([]string{
		"Make sure to review everything carefully.",
		"$ go test ./...",
		"```",
		"go build ./...",
		"```",
		"Finally run `pytest -q` for the python half.",
	}, "\n")

	ev := parseEvidence(response, 200)
	assert.Equal(t, []string{"pytest -q", "go test ./..."}, ev.TestCommands)
	assert.Equal(t, []string{"go build ./..."}, ev.BuildCommands)
}

func TestParseEvidenceIgnoresProseVerbs(t *testing.T) {
	// "make sure" reads like a make invocation but is plain prose.
	ev := parseEvidence("make sure the tests pass before continuing", 200)
	assert.Empty(t, ev.TestCommands)
	assert.Empty(t, ev.BuildCommands)
}

func TestRejectPath(t *testing.T) {
	rejected := []string{
		"https://x.com/a.md",
		"www.foo.com",
		"C:/Users/x.txt",
		`C:\temp\a.db`,
		"1.2.3",
		"v2.0.1",
		"example.com",
		"example.config.js",
		"placeholder.txt",
		"and/or",
		"i/o",
		"2024/01/05",
		"github.com/user/repo",
		".md",
		"e.g",
	}
	for _, s := range rejected {
		assert.True(t, rejectPath(s), "should reject %q", s)
	}

	kept := []string{
		"api/users.js",
		"main.go",
		".env",
		".gitignore",
		"pkg/plan/plan.go",
		"README.md",
		"docs/guide.md",
	}
	for _, s := range kept {
		assert.False(t, rejectPath(s), "should keep %q", s)
	}
}

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, "go test ./...", normalizeCommand("$ go test ./..."))
	assert.Equal(t, "pytest -q", normalizeCommand("Run: pytest -q"))
	assert.Equal(t, "npm test", normalizeCommand("  npm test  "))
}

func TestMatchesPrefixWordBoundary(t *testing.T) {
	assert.True(t, matchesPrefix("make test", testCommandPrefixes))
	assert.True(t, matchesPrefix("go test -run TestFoo ./...", testCommandPrefixes))
	assert.False(t, matchesPrefix("make testify", testCommandPrefixes))
	assert.False(t, matchesPrefix("gotestsum ./...", testCommandPrefixes))
}

func TestLooksReadOnly(t *testing.T) {
	assert.True(t, looksReadOnly("There are 12 files; the count was produced by find."))
	assert.True(t, looksReadOnly("This was analysis only, no files were modified."))
	assert.False(t, looksReadOnly("I implemented the handler and wrote tests."))
}

func TestEvaluateSufficiency(t *testing.T) {
	tests := []struct {
		name     string
		ev       *Evidence
		response string
		ok       bool
		reason   string
	}{
		{
			name:     "implementation with files and snippet",
			ev:       &Evidence{Files: []string{"a.go"}, Snippets: []string{"func a() {}"}},
			response: "implemented it",
			ok:       true,
		},
		{
			name:     "files but nothing checkable",
			ev:       &Evidence{Files: []string{"a.go"}},
			response: "implemented it",
			ok:       false,
			reason:   "code snippet",
		},
		{
			name:     "snippet but no files",
			ev:       &Evidence{Snippets: []string{"func a() {}"}},
			response: "implemented it",
			ok:       false,
			reason:   "paths",
		},
		{
			name:     "read-only with confirmation",
			ev:       &Evidence{Confirmations: 1},
			response: "analysis only, no files were modified",
			ok:       true,
		},
		{
			name:     "read-only with nothing",
			ev:       &Evidence{},
			response: "analysis only, nothing else to show",
			ok:       false,
			reason:   "read-only",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := evaluateSufficiency(tt.ev, tt.response)
			assert.Equal(t, tt.ok, ok)
			if tt.reason != "" {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}
}
