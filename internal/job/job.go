// Package job describes the voiceover job documents dropped into the intake
// directory.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTitle names the output directory of a job without a title.
const DefaultTitle = "untitled"

var (
	ErrMissingVoiceover = errors.New("voiceover field is required")
	ErrUnsafeTitle      = errors.New("title does not name a directory inside the output root")
)

// Job is one script: a title and the ordered lines to synthesize.
type Job struct {
	Title     string
	Voiceover []string
}

type document struct {
	Title     *string   `json:"title"`
	Voiceover *[]string `json:"voiceover"`
}

// Load reads and validates the job document at path.
func Load(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job: %w", err)
	}
	return Parse(data)
}

// Parse decodes a job document. An absent or empty title falls back to
// DefaultTitle; an absent voiceover list is an error.
func Parse(data []byte) (Job, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if doc.Voiceover == nil {
		return Job{}, ErrMissingVoiceover
	}
	j := Job{Title: DefaultTitle, Voiceover: *doc.Voiceover}
	if doc.Title != nil && *doc.Title != "" {
		j.Title = *doc.Title
	}
	if !filepath.IsLocal(j.DirName()) {
		return Job{}, fmt.Errorf("%w: %q", ErrUnsafeTitle, j.Title)
	}
	return j, nil
}

// DirName is the output directory name for the job: the title with spaces
// replaced by underscores. Distinct titles may map to the same name.
func (j Job) DirName() string {
	title := j.Title
	if title == "" {
		title = DefaultTitle
	}
	return SanitizeTitle(title)
}

// SanitizeTitle replaces spaces with underscores and nothing else.
func SanitizeTitle(title string) string {
	return strings.ReplaceAll(title, " ", "_")
}

// OutputFile names the audio file of the line at the 1-based index.
func OutputFile(index int) string {
	return fmt.Sprintf("voiceover_%d.mp3", index)
}
