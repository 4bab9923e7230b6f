package moderation

import (
	"context"
	"strings"
	"unicode"
)

// ProfanityChecker screens content and returns the matched categories.
// The default implementation is a static wordlist; deployments can plug in
// an external classification service behind the same interface.
type ProfanityChecker interface {
	Check(ctx context.Context, content string) ([]string, error)
}

// wordlistChecker matches lowercased content against per-category wordlists.
type wordlistChecker struct {
	categories map[string][]string
}

// NewWordlistChecker returns the default static profanity checker.
func NewWordlistChecker() ProfanityChecker {
	return &wordlistChecker{
		categories: map[string][]string{
			"profanity":  {"damn", "hell", "crap", "bastard"},
			"slur":       {"bigot"},
			"harassment": {"idiot", "moron", "loser"},
		},
	}
}

func (c *wordlistChecker) Check(_ context.Context, content string) ([]string, error) {
	lowered := strings.ToLower(content)
	var matched []string
	for category, words := range c.categories {
		for _, w := range words {
			if strings.Contains(lowered, w) {
				matched = append(matched, category)
				break
			}
		}
	}
	return matched, nil
}

const spamRunLength = 10

// isSpam flags a run of more than spamRunLength identical consecutive
// characters, or shouting: content longer than 20 characters that is
// entirely upper-case.
func isSpam(content string) bool {
	run := 1
	var prev rune
	for i, r := range content {
		if i > 0 && r == prev {
			run++
			if run > spamRunLength {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}

	if len(content) > 20 {
		hasLetter := false
		allUpper := true
		for _, r := range content {
			if unicode.IsLetter(r) {
				hasLetter = true
				if !unicode.IsUpper(r) {
					allUpper = false
					break
				}
			}
		}
		if hasLetter && allUpper {
			return true
		}
	}
	return false
}

// hasLink flags any http(s) URL.
func hasLink(content string) bool {
	return strings.Contains(content, "http://") || strings.Contains(content, "https://")
}
