package verifier

import (
	"regexp"
	"strings"
)

// Evidence is the parsed record of one challenge response: what the
// agent claims to have produced and how it can be checked.
type Evidence struct {
	Files         []string `json:"files,omitempty"`
	TestCommands  []string `json:"test_commands,omitempty"`
	BuildCommands []string `json:"build_commands,omitempty"`
	Confirmations int      `json:"confirmations"`
	Snippets      []string `json:"snippets,omitempty"`
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```[\\w+-]*\\r?\\n(.*?)```")
	inlineCodeRe  = regexp.MustCompile("`([^`\n]+)`")

	// Paths claimed in prose: slash-joined relative paths, and
	// extension-bearing names within reach of a file-operation verb.
	relPathRe  = regexp.MustCompile(`(?:\./)?(?:[\w-]+/)+[\w.-]*\w`)
	verbPathRe = regexp.MustCompile(`(?i)\b(?:created|wrote|modified|updated|added|generated|saved|edited)\b[^.\n]{0,60}?([\w-][\w./-]*\.[A-Za-z]\w{0,7})`)

	checkboxRe  = regexp.MustCompile(`(?m)^\s*[-*]\s*\[[xX]\]`)
	versionRe   = regexp.MustCompile(`^v?\d+(?:\.\d+)+$`)
	driveRe     = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
	extensionRe = regexp.MustCompile(`\.[A-Za-z]\w{0,7}$`)
	urlRe       = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	winPathRe   = regexp.MustCompile(`[A-Za-z]:[\\/]\S*`)
)

// Bare extension mentions ("12 `.md` files") are not file claims.
// Real dotfiles (.env, .gitignore) never collide with these stems.
var extensionStems = map[string]bool{
	"md": true, "txt": true, "js": true, "ts": true, "go": true,
	"py": true, "rb": true, "rs": true, "json": true, "yaml": true,
	"yml": true, "toml": true, "css": true, "html": true, "sh": true,
	"sql": true, "csv": true, "xml": true, "log": true,
}

const maxFileClaims = 50

// Commands are recognized by allow-listed shapes only; free-form shell
// is never trusted. Test prefixes are checked before build prefixes so
// "make test" lands on the test side.
var testCommandPrefixes = []string{
	"go test", "npm test", "npm run test", "yarn test", "pnpm test",
	"pytest", "python -m pytest", "python3 -m pytest", "cargo test",
	"make test", "mvn test", "./gradlew test", "rake test", "tox",
	"jest", "vitest", "rspec", "dotnet test", "ctest",
}

var buildCommandPrefixes = []string{
	"go build", "go vet", "npm run build", "yarn build", "pnpm build",
	"cargo build", "cargo check", "make build", "make all", "mvn package",
	"mvn compile", "./gradlew build", "tsc", "docker build", "dotnet build",
}

// Phrases that mark a response as describing a read-only or analysis
// task, which legitimately produces no files.
var readOnlyPhrases = []string{
	"read-only", "read only", "analysis only", "only analyzed",
	"only inspected", "no files were created", "no files were modified",
	"no files changed", "did not create", "didn't create",
	"did not modify", "no changes were made", "no code changes",
	"the count", "counted", "the answer is",
}

// parseEvidence extracts the evidence record from a challenge
// response. Fenced blocks become snippets and are stripped before path
// scanning so shell text inside them cannot masquerade as file claims.
func parseEvidence(text string, snippetLen int) *Evidence {
	ev := &Evidence{}

	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		snippet := strings.TrimSpace(m[1])
		if snippet == "" {
			continue
		}
		if snippetLen > 0 && len(snippet) > snippetLen {
			snippet = snippet[:snippetLen]
		}
		ev.Snippets = append(ev.Snippets, snippet)
	}

	// URLs and drive-letter paths are stripped before path scanning so
	// their fragments cannot shed path-shaped tokens.
	prose := fencedBlockRe.ReplaceAllString(text, "\n")
	prose = urlRe.ReplaceAllString(prose, " ")
	prose = winPathRe.ReplaceAllString(prose, " ")

	// Commands are taken only from code-marked text (inline backticks,
	// fenced lines, explicit "$ " lines); bare prose like "make sure
	// to..." must never become a runnable claim.
	var commandCandidates []string
	for _, m := range inlineCodeRe.FindAllStringSubmatch(prose, -1) {
		commandCandidates = append(commandCandidates, m[1])
	}
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		commandCandidates = append(commandCandidates, strings.Split(m[1], "\n")...)
	}
	for _, line := range strings.Split(prose, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "$ ") {
			commandCandidates = append(commandCandidates, line)
		}
	}
	seenCmd := map[string]bool{}
	for _, raw := range commandCandidates {
		cmd := normalizeCommand(raw)
		if cmd == "" || seenCmd[cmd] {
			continue
		}
		switch {
		case matchesPrefix(cmd, testCommandPrefixes):
			seenCmd[cmd] = true
			ev.TestCommands = append(ev.TestCommands, cmd)
		case matchesPrefix(cmd, buildCommandPrefixes):
			seenCmd[cmd] = true
			ev.BuildCommands = append(ev.BuildCommands, cmd)
		}
	}

	seenFile := map[string]bool{}
	addFile := func(candidate string) {
		f := strings.Trim(candidate, `"'.,:;()[]{}`)
		if f == "" || seenFile[f] || len(ev.Files) >= maxFileClaims {
			return
		}
		if rejectPath(f) {
			return
		}
		seenFile[f] = true
		ev.Files = append(ev.Files, f)
	}
	for _, m := range inlineCodeRe.FindAllStringSubmatch(prose, -1) {
		if pathLike(m[1]) {
			addFile(m[1])
		}
	}
	for _, m := range relPathRe.FindAllString(prose, -1) {
		addFile(m)
	}
	for _, m := range verbPathRe.FindAllStringSubmatch(prose, -1) {
		addFile(m[1])
	}

	ev.Confirmations = len(checkboxRe.FindAllString(text, -1))
	return ev
}

// pathLike filters inline-code contents down to things that read as a
// single path: no spaces, and either a slash or a file extension.
func pathLike(s string) bool {
	if strings.ContainsAny(s, " \t") {
		return false
	}
	return strings.Contains(s, "/") || extensionRe.MatchString(s)
}

// rejectPath drops the classic false positives: URLs, version numbers,
// Windows drive letters, example domains, and placeholder text.
func rejectPath(s string) bool {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "://") || strings.HasPrefix(lower, "www."):
		return true
	case driveRe.MatchString(s):
		return true
	case versionRe.MatchString(s):
		return true
	case strings.Contains(lower, "example."):
		return true
	case strings.Contains(lower, "placeholder"):
		return true
	case strings.HasSuffix(lower, ".com") || strings.HasSuffix(lower, ".org") || strings.HasSuffix(lower, ".net"):
		return true
	case strings.Contains(lower, ".com/") || strings.Contains(lower, ".org/") || strings.Contains(lower, ".net/"):
		return true
	case strings.HasPrefix(s, ".") && !strings.Contains(s, "/") && extensionStems[strings.TrimPrefix(lower, ".")]:
		return true
	}
	switch lower {
	case "e.g", "i.e", "etc", "vs", "and/or", "either/or", "n/a", "i/o", "tcp/ip", "a/b", "24/7":
		return true
	}
	// Dates and fractions ("2024/01/05", "3/4") are not paths.
	allDigits := true
	for _, seg := range strings.Split(s, "/") {
		if seg == "" || strings.IndexFunc(seg, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			allDigits = false
			break
		}
	}
	return allDigits && strings.Contains(s, "/")
}

func normalizeCommand(raw string) string {
	cmd := strings.TrimSpace(raw)
	cmd = strings.TrimPrefix(cmd, "$ ")
	cmd = strings.TrimPrefix(cmd, "% ")
	for _, label := range []string{"run:", "command:", "verify:"} {
		if len(cmd) > len(label) && strings.EqualFold(cmd[:len(label)], label) {
			cmd = strings.TrimSpace(cmd[len(label):])
		}
	}
	return cmd
}

func matchesPrefix(cmd string, prefixes []string) bool {
	for _, p := range prefixes {
		if cmd == p || strings.HasPrefix(cmd, p+" ") {
			return true
		}
	}
	return false
}

// looksReadOnly reports whether the response text reads as an
// analysis task rather than an implementation one.
func looksReadOnly(response string) bool {
	lower := strings.ToLower(response)
	for _, phrase := range readOnlyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// evaluateSufficiency applies the minimum-evidence rules. Read-only
// tasks need a snippet or a confirmed sub-goal; implementation tasks
// need at least one file plus one checkable artifact.
func evaluateSufficiency(ev *Evidence, response string) (bool, string) {
	if looksReadOnly(response) {
		if len(ev.Snippets) > 0 || ev.Confirmations > 0 {
			return true, ""
		}
		return false, "a read-only task still needs the code or command that produced the answer, or a checked sub-goal"
	}

	var missing []string
	if len(ev.Files) == 0 {
		missing = append(missing, "the exact paths of files you created or modified")
	}
	if len(ev.Snippets) == 0 && len(ev.TestCommands) == 0 && len(ev.BuildCommands) == 0 {
		missing = append(missing, "a code snippet or a runnable test/build command")
	}
	if len(missing) > 0 {
		return false, "missing " + strings.Join(missing, " and ")
	}
	return true, ""
}
