package genfix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQuotaExceeded(t *testing.T) {
	assert.True(t, IsQuotaExceeded(errors.New("gemini returned 429: RESOURCE_EXHAUSTED")))
	assert.True(t, IsQuotaExceeded(errors.New("Quota exceeded for quota metric")))
	assert.True(t, IsQuotaExceeded(errors.New("you ran out of quota")))
	assert.False(t, IsQuotaExceeded(errors.New("connection refused")))
	assert.False(t, IsQuotaExceeded(nil))
}

func TestRetryAfterHint(t *testing.T) {
	assert.Equal(t, 27, RetryAfterHint(errors.New("Quota exceeded. Please retry in 26.3s.")))
	assert.Equal(t, 5, RetryAfterHint(errors.New("retry in 5s")))
	assert.Equal(t, DefaultRetryAfter, RetryAfterHint(errors.New("Quota exceeded")))
	assert.Equal(t, DefaultRetryAfter, RetryAfterHint(nil))
}

func TestDemoEdits(t *testing.T) {
	edits := DemoEdits("https://github.com/acme/widgets")
	assert.Len(t, edits, 1)
	assert.Equal(t, "README.md", edits[0].Path)
	assert.Contains(t, edits[0].UpdatedContent, "https://github.com/acme/widgets")
}
