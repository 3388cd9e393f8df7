package snapshot

import (
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// PreviewStats summarizes a proposed change against the current file
// content as line counts.
type PreviewStats struct {
	Path         string `json:"path"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
	IsNew        bool   `json:"is_new"`
}

var dmp = func() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = 0
	return d
}()

// Preview computes line add/remove counts for replacing the file at path
// with the proposed content. A missing file counts every proposed line
// as added.
func Preview(path, proposed string) PreviewStats {
	stats := PreviewStats{Path: path}
	current, err := os.ReadFile(path)
	if err != nil {
		stats.IsNew = true
		if proposed != "" {
			stats.LinesAdded = countLines(proposed)
		}
		return stats
	}
	added, removed := DiffStats(string(current), proposed)
	stats.LinesAdded = added
	stats.LinesRemoved = removed
	return stats
}

// DiffStats returns the number of lines added and removed going from old
// to new content, using a line-granular diff.
func DiffStats(oldContent, newContent string) (added, removed int) {
	if oldContent == newContent {
		return 0, 0
	}
	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
