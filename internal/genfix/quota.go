package genfix

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/guardianai/patch-orchestrator/internal/domain"
)

// DefaultRetryAfter is used when the quota message carries no parseable hint
const DefaultRetryAfter = 10

var (
	quotaPattern      = regexp.MustCompile(`(?i)RESOURCE_EXHAUSTED|Quota exceeded|quota`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry in ([\d.]+)s`)
)

// IsQuotaExceeded reports whether an error message matches the upstream
// quota-exhaustion pattern.
func IsQuotaExceeded(err error) bool {
	return err != nil && quotaPattern.MatchString(err.Error())
}

// RetryAfterHint extracts the "retry in N s" hint from a quota message,
// rounded up to whole seconds; DefaultRetryAfter if unparseable.
func RetryAfterHint(err error) int {
	if err == nil {
		return DefaultRetryAfter
	}
	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return DefaultRetryAfter
	}
	secs, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil || secs <= 0 {
		return DefaultRetryAfter
	}
	return int(math.Ceil(secs))
}

// DemoEdits returns the synthetic placeholder edit substituted when the
// model is quota-exhausted and demo fallback is enabled.
func DemoEdits(repoURL string) []domain.Edit {
	if repoURL == "" {
		repoURL = "your repo"
	}
	return []domain.Edit{
		{
			Path: "README.md",
			UpdatedContent: fmt.Sprintf("# Demo Fix\n\nThis is a demo edit for %s since the AI quota was exceeded.\n\n- Note: Replace this with a real fix once the AI quota is available.", repoURL),
			Summary: "Demo README update because model quota exceeded (simulated edit)",
		},
	}
}
