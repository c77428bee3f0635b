package workflow

import (
	"strconv"
	"strings"
)

const attemptSeparator = "#"

// JobID derives the stage job identifier for a workflow. The first attempt
// is "<workflow>:<stage>"; later attempts append "#<n>".
func JobID(workflowID, stageName string, attempt int) string {
	id := workflowID + ":" + stageName
	if attempt > 1 {
		id += attemptSeparator + strconv.Itoa(attempt)
	}
	return id
}

// ParseJobID splits a job identifier produced by JobID.
func ParseJobID(jobID string) (workflowID, stageName string, attempt int, ok bool) {
	idx := strings.LastIndex(jobID, ":")
	if idx <= 0 || idx == len(jobID)-1 {
		return "", "", 0, false
	}
	workflowID = jobID[:idx]
	rest := jobID[idx+1:]
	attempt = 1
	if name, n, found := strings.Cut(rest, attemptSeparator); found {
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed < 2 {
			return "", "", 0, false
		}
		rest, attempt = name, parsed
	}
	return workflowID, rest, attempt, true
}
