package moderation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSpamRepeatedRun(t *testing.T) {
	// Exactly 10 identical characters in a row is still fine.
	assert.False(t, isSpam(strings.Repeat("a", 10)))
	// 11 crosses the threshold.
	assert.True(t, isSpam(strings.Repeat("a", 11)))

	assert.True(t, isSpam("wow "+strings.Repeat("!", 11)+" nice"))
	assert.False(t, isSpam("abababababababababab"))
}

func TestIsSpamAllCaps(t *testing.T) {
	assert.False(t, isSpam("SHORT YELL"), "20 characters or fewer is allowed")
	assert.True(t, isSpam("THIS IS A VERY LOUD MESSAGE"))
	assert.False(t, isSpam("This Is A Long Mixed Case Message"))
	// Digits and punctuation alone never count as shouting.
	assert.False(t, isSpam("1234567890 1234567890!"))
}

func TestHasLink(t *testing.T) {
	assert.True(t, hasLink("check https://example.com out"))
	assert.True(t, hasLink("http://example.com"))
	assert.False(t, hasLink("example.com without scheme"))
	assert.False(t, hasLink("ftp://example.com"))
}

func TestWordlistChecker(t *testing.T) {
	checker := NewWordlistChecker()
	ctx := context.Background()

	cats, err := checker.Check(ctx, "what the HELL is this")
	require.NoError(t, err)
	assert.Contains(t, cats, "profanity")

	cats, err = checker.Check(ctx, "a perfectly nice message")
	require.NoError(t, err)
	assert.Empty(t, cats)
}
