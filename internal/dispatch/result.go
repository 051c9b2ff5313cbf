package dispatch

// Outcome classifies how a job file left the dispatcher.
type Outcome string

const (
	// OutcomeOK means every line was synthesized and the job was moved.
	OutcomeOK Outcome = "ok"
	// OutcomeItemError means at least one line was rejected by the endpoint.
	// The job was still moved; written lines stay on disk.
	OutcomeItemError Outcome = "item_error"
	// OutcomeParseError means the job document could not be read or
	// decoded. The job stays in the intake directory.
	OutcomeParseError Outcome = "parse_error"
	// OutcomeFailed means a transport, filesystem or cancellation error
	// aborted the job midway. The job stays in the intake directory.
	OutcomeFailed Outcome = "failed"
)

// Moved reports whether jobs with this outcome end up in the done directory.
func (o Outcome) Moved() bool {
	return o == OutcomeOK || o == OutcomeItemError
}

// ItemResult is the fate of one voiceover line.
type ItemResult struct {
	Index  int
	Path   string
	Status int
	Err    error
}

// JobResult is the tagged result of one job file.
type JobResult struct {
	File      string
	Title     string
	OutputDir string
	Outcome   Outcome
	Err       error
	Items     []ItemResult
}

// Written returns the paths of the audio files produced for the job.
func (r JobResult) Written() []string {
	var paths []string
	for _, item := range r.Items {
		if item.Err == nil && item.Path != "" {
			paths = append(paths, item.Path)
		}
	}
	return paths
}

// Report collects the results of one run in processing order.
type Report struct {
	RunID  string
	Jobs   []JobResult
	Pauses int
}

// Count returns how many jobs ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, j := range r.Jobs {
		if j.Outcome == o {
			n++
		}
	}
	return n
}
