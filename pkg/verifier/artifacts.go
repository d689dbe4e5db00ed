package verifier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactReport classifies every claimed file against the filesystem.
type ArtifactReport struct {
	Verified []string `json:"verified,omitempty"`
	Empty    []string `json:"empty,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// checkArtifacts stats each claimed path, resolving relative paths
// against the working directory. Directories count as verified.
func checkArtifacts(workdir string, files []string) *ArtifactReport {
	report := &ArtifactReport{}
	for _, f := range files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(workdir, path)
		}
		info, err := os.Stat(path)
		switch {
		case err != nil:
			report.Missing = append(report.Missing, f)
		case info.IsDir() || info.Size() > 0:
			report.Verified = append(report.Verified, f)
		default:
			report.Empty = append(report.Empty, f)
		}
	}
	return report
}

func (r *ArtifactReport) claimed() int {
	return len(r.Verified) + len(r.Empty) + len(r.Missing)
}

// failed applies the layer-2 rules: nothing verified despite claims,
// more than half the claims missing, or more empty files than real
// ones.
func (r *ArtifactReport) failed() bool {
	claimed := r.claimed()
	if claimed == 0 {
		return false
	}
	if len(r.Verified) == 0 {
		return true
	}
	if float64(len(r.Missing))/float64(claimed) > 0.5 {
		return true
	}
	return len(r.Empty) > len(r.Verified)
}

func (r *ArtifactReport) describe() string {
	var parts []string
	if len(r.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing: %s", strings.Join(r.Missing, ", ")))
	}
	if len(r.Empty) > 0 {
		parts = append(parts, fmt.Sprintf("empty: %s", strings.Join(r.Empty, ", ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d of %d claimed files verified", len(r.Verified), r.claimed())
	}
	return strings.Join(parts, "; ")
}
