package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Artifact and requirement labels are logical buckets, not paths.
// Quoted names from step text are carried verbatim next to them.
const (
	LabelFiles    = "files"
	LabelTests    = "tests"
	LabelDatabase = "database"
	LabelAPI      = "api"
	LabelUI       = "ui"
	LabelDocs     = "docs"
	LabelConfig   = "config"
	LabelEnv      = "env"
)

var creationVerbs = map[string]bool{
	"create": true, "write": true, "implement": true, "add": true,
	"build": true, "generate": true, "define": true, "make": true,
	"develop": true, "scaffold": true, "draft": true,
}

var consumptionVerbs = map[string]bool{
	"use": true, "read": true, "test": true, "verify": true,
	"call": true, "query": true, "check": true, "validate": true,
	"run": true, "update": true, "extend": true, "integrate": true,
	"review": true, "execute": true, "refactor": true, "fix": true,
}

var setupVerbs = map[string]bool{
	"setup": true, "configure": true, "install": true,
	"initialize": true, "init": true, "bootstrap": true,
	"provision": true,
}

// testWords classify a step as testing/verifying work whether the
// word appears as a verb or a noun ("write unit tests").
var testWords = map[string]bool{
	"test": true, "tests": true, "testing": true,
	"verify": true, "verifies": true, "verification": true,
	"validate": true, "validation": true,
	"check": true, "checks": true,
}

var bucketKeywords = map[string]string{
	"file": LabelFiles, "files": LabelFiles, "module": LabelFiles,
	"modules": LabelFiles, "class": LabelFiles, "classes": LabelFiles,
	"function": LabelFiles, "functions": LabelFiles, "script": LabelFiles,
	"scripts": LabelFiles, "code": LabelFiles, "model": LabelFiles,
	"models": LabelFiles, "struct": LabelFiles, "package": LabelFiles,
	"library": LabelFiles,

	"test": LabelTests, "tests": LabelTests, "testing": LabelTests,
	"spec": LabelTests, "specs": LabelTests, "coverage": LabelTests,

	"database": LabelDatabase, "db": LabelDatabase, "schema": LabelDatabase,
	"table": LabelDatabase, "tables": LabelDatabase, "migration": LabelDatabase,
	"migrations": LabelDatabase, "sql": LabelDatabase, "postgres": LabelDatabase,
	"sqlite": LabelDatabase, "storage": LabelDatabase,

	"api": LabelAPI, "endpoint": LabelAPI, "endpoints": LabelAPI,
	"route": LabelAPI, "routes": LabelAPI, "rest": LabelAPI,
	"server": LabelAPI, "handler": LabelAPI, "handlers": LabelAPI,
	"http": LabelAPI, "graphql": LabelAPI, "webhook": LabelAPI,

	"ui": LabelUI, "frontend": LabelUI, "page": LabelUI, "pages": LabelUI,
	"view": LabelUI, "views": LabelUI, "form": LabelUI, "forms": LabelUI,
	"component": LabelUI, "components": LabelUI, "css": LabelUI,
	"html": LabelUI, "layout": LabelUI, "dashboard": LabelUI,

	"doc": LabelDocs, "docs": LabelDocs, "documentation": LabelDocs,
	"readme": LabelDocs, "changelog": LabelDocs, "guide": LabelDocs,

	"config": LabelConfig, "configuration": LabelConfig,
	"configs": LabelConfig, "settings": LabelConfig, "yaml": LabelConfig,
	"toml": LabelConfig,

	"env": LabelEnv, "environment": LabelEnv,
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"to": true, "for": true, "of": true, "in": true, "on": true,
	"with": true, "from": true, "by": true, "at": true, "is": true,
	"are": true, "be": true, "this": true, "that": true, "it": true,
	"its": true, "as": true, "into": true, "all": true, "each": true,
	"new": true, "then": true, "will": true, "should": true,
	"unit": true, "basic": true, "main": true, "up": true,
}

var (
	quotedRe = regexp.MustCompile("`([^`]+)`|\"([^\"]+)\"|'([^']+)'")
	wordRe   = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)
)

// Analyze enriches every step with artifact and requirement labels,
// derives dependency edges between them, and assigns parallel groups
// to compatible peers at the same dependency frontier. Existing
// dependencies are preserved; analysis only adds edges.
func Analyze(p *Plan) {
	for _, s := range p.Steps {
		s.Artifacts, s.Requirements = extractLabels(s.Description)
	}

	for i, step := range p.Steps {
		for j := 0; j < i; j++ {
			earlier := p.Steps[j]
			if dependsByLabels(step, earlier) ||
				dependsByTestAfterCreate(step, earlier) ||
				isSetupStep(earlier.Description) {
				addDependency(step, earlier.Number)
			}
		}
	}

	deriveDependents(p)
	assignParallelGroups(p)
}

// extractLabels walks the description as a token stream. Creation and
// setup verbs switch to producing mode, consumption verbs to consuming
// mode; bucket keywords and quoted names land in the active set.
// Before any verb appears, labels count as requirements.
func extractLabels(desc string) (artifacts, requirements []string) {
	type token struct {
		pos    int
		text   string
		quoted bool
	}
	var tokens []token
	masked := []byte(desc)
	for _, m := range quotedRe.FindAllStringSubmatchIndex(desc, -1) {
		for g := 1; g <= 3; g++ {
			if m[2*g] >= 0 {
				tokens = append(tokens, token{
					pos:    m[0],
					text:   strings.ToLower(strings.TrimSpace(desc[m[2*g]:m[2*g+1]])),
					quoted: true,
				})
			}
		}
		for i := m[0]; i < m[1]; i++ {
			masked[i] = ' '
		}
	}
	for _, m := range wordRe.FindAllStringIndex(string(masked), -1) {
		tokens = append(tokens, token{pos: m[0], text: strings.ToLower(desc[m[0]:m[1]])})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].pos < tokens[j].pos })

	producing := false
	artSet := map[string]bool{}
	reqSet := map[string]bool{}
	record := func(label string) {
		if label == "" {
			return
		}
		if producing {
			artSet[label] = true
		} else {
			reqSet[label] = true
		}
	}
	for i, t := range tokens {
		if t.quoted {
			record(t.text)
			continue
		}
		setUp := t.text == "set" && i+1 < len(tokens) && tokens[i+1].text == "up"
		switch {
		case creationVerbs[t.text] || setupVerbs[t.text] || setUp:
			producing = true
		case consumptionVerbs[t.text]:
			producing = false
		default:
			record(bucketKeywords[t.text])
		}
	}
	return sortedLabels(artSet), sortedLabels(reqSet)
}

func sortedLabels(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for label := range set {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func dependsByLabels(step, earlier *Step) bool {
	for _, req := range step.Requirements {
		for _, art := range earlier.Artifacts {
			if req == art {
				return true
			}
		}
	}
	return false
}

// dependsByTestAfterCreate links a testing step to an earlier creation
// step when the two descriptions share at least two content words.
func dependsByTestAfterCreate(step, earlier *Step) bool {
	if !isTestingStep(step.Description) || !isCreationStep(earlier.Description) {
		return false
	}
	shared := 0
	earlierWords := contentWords(earlier.Description)
	for word := range contentWords(step.Description) {
		if earlierWords[word] {
			shared++
		}
	}
	return shared >= 2
}

func isTestingStep(desc string) bool {
	for _, w := range wordRe.FindAllString(strings.ToLower(desc), -1) {
		if testWords[w] {
			return true
		}
	}
	return false
}

func isCreationStep(desc string) bool {
	for _, w := range wordRe.FindAllString(strings.ToLower(desc), -1) {
		if creationVerbs[w] {
			return true
		}
	}
	return false
}

func isSetupStep(desc string) bool {
	lower := strings.ToLower(desc)
	if strings.Contains(lower, "set up") {
		return true
	}
	for _, w := range wordRe.FindAllString(lower, -1) {
		if setupVerbs[w] {
			return true
		}
	}
	return false
}

// contentWords returns the meaningful words of a description: three
// letters or longer, not a stopword, not a verb from any class.
func contentWords(desc string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(desc), -1) {
		if len(w) < 3 || stopwords[w] ||
			creationVerbs[w] || consumptionVerbs[w] || setupVerbs[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func addDependency(s *Step, num string) {
	if s.Number == num || s.DependsOn(num) {
		return
	}
	s.Dependencies = append(s.Dependencies, num)
}

func deriveDependents(p *Plan) {
	for _, s := range p.Steps {
		s.Dependents = nil
	}
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if d := p.StepByNumber(dep); d != nil {
				d.Dependents = append(d.Dependents, s.Number)
			}
		}
	}
}

// assignParallelGroups groups mutually compatible steps that sit at
// the same dependency depth. Groups of one are discarded; members of
// a real group get CanParallelize and a shared positive group id.
func assignParallelGroups(p *Plan) {
	depths := map[string]int{}
	var depthOf func(s *Step) int
	depthOf = func(s *Step) int {
		if d, ok := depths[s.Number]; ok {
			return d
		}
		depths[s.Number] = 0 // cycle guard; Validate rejects real cycles
		max := 0
		for _, dep := range s.Dependencies {
			if d := p.StepByNumber(dep); d != nil {
				if dd := depthOf(d) + 1; dd > max {
					max = dd
				}
			}
		}
		depths[s.Number] = max
		return max
	}

	byDepth := map[int][]*Step{}
	for _, s := range p.Steps {
		byDepth[depthOf(s)] = append(byDepth[depthOf(s)], s)
	}

	groupID := 0
	for depth := 0; depth <= maxDepth(byDepth); depth++ {
		peers := byDepth[depth]
		assigned := map[string]bool{}
		for i, seed := range peers {
			if assigned[seed.Number] {
				continue
			}
			group := []*Step{seed}
			for _, other := range peers[i+1:] {
				if assigned[other.Number] {
					continue
				}
				ok := true
				for _, member := range group {
					if !canRunTogether(other, member) {
						ok = false
						break
					}
				}
				if ok {
					group = append(group, other)
				}
			}
			if len(group) < 2 {
				continue
			}
			groupID++
			for _, member := range group {
				member.CanParallelize = true
				member.ParallelGroup = groupID
				assigned[member.Number] = true
			}
		}
	}
}

func maxDepth(byDepth map[int][]*Step) int {
	max := 0
	for d := range byDepth {
		if d > max {
			max = d
		}
	}
	return max
}

// DescribeDependencies renders a short human-readable edge list for
// logs, e.g. "2<-1, 4<-2,3".
func DescribeDependencies(p *Plan) string {
	var parts []string
	for _, s := range p.Steps {
		if len(s.Dependencies) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s<-%s", s.Number, strings.Join(s.Dependencies, ",")))
	}
	return strings.Join(parts, ", ")
}
