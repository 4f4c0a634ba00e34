package generation

import (
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// FailureClass governs what the caller does with a failed job: resubmit,
// move on to the next unit of work, or surface as final.
type FailureClass string

const (
	ClassNone      FailureClass = "none"
	ClassRetryable FailureClass = "retryable"
	ClassSkip      FailureClass = "skip"
	ClassFatal     FailureClass = "fatal"
)

// Marker substrings of provider error messages. String matching is fragile,
// so the tables stay narrow and unmatched errors are logged for triage
// instead of being shuffled into a softer category.
var skipMarkers = []string{
	"nsfw",
	"sensitive content",
	"content policy",
	"flagged by safety",
	"no output generated",
	"no usable output",
}

var retryableMarkers = []string{
	"temporarily unavailable",
	"too many requests",
	"rate limit",
	"connection reset",
	"please try again",
	"service is busy",
}

// Classify maps a provider failure message onto a failure class. Content
// rejections classify as Skip, transient unavailability as Retryable and
// everything else as Fatal.
func Classify(errMsg string) FailureClass {
	msg := strings.ToLower(strings.TrimSpace(errMsg))
	if msg == "" {
		return ClassFatal
	}
	for _, marker := range skipMarkers {
		if strings.Contains(msg, marker) {
			return ClassSkip
		}
	}
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return ClassRetryable
		}
	}
	log.Warnf("[Generation] unclassified provider error treated as fatal: %s", errMsg)
	return ClassFatal
}
