package domain

import (
	"fmt"
	"strings"
)

// generalBlockRoots are category families rejected for every prompt,
// including their /sub-variants (hate/threatening, self-harm/intent, ...).
// sexual is absent on purpose: plain sexual content is an NSFW-permission
// question, while sexual/minors is always rejected below.
var generalBlockRoots = map[string]bool{
	"harassment": true,
	"hate":       true,
	"self-harm":  true,
	"violence":   true,
}

// CheckPrompt applies the moderation decision rules to a verdict. The
// general rule runs before the NSFW rule so that sexual/minors rejects even
// for teams with NSFW enabled.
func (m Moderation) CheckPrompt(nsfwAllowed bool) error {
	for cat, flagged := range m.Categories {
		if !flagged {
			continue
		}
		c := strings.ToLower(cat)
		if generalBlockRoots[categoryRoot(c)] || c == "sexual/minors" || strings.HasPrefix(c, "sexual/minors/") {
			return fmt.Errorf("%w: prompt contains inappropriate content", ErrModerationBlocked)
		}
	}
	if nsfwAllowed {
		return nil
	}
	for cat, flagged := range m.Categories {
		if !flagged {
			continue
		}
		if categoryRoot(strings.ToLower(cat)) == "sexual" {
			return fmt.Errorf("%w: NSFW is not enabled for your team or not allowed for this persona", ErrModerationBlocked)
		}
	}
	return nil
}

// Flagged reports whether any category is set at all.
func (m Moderation) Flagged() bool {
	for _, v := range m.Categories {
		if v {
			return true
		}
	}
	return false
}

func categoryRoot(c string) string {
	if i := strings.IndexByte(c, '/'); i >= 0 {
		return c[:i]
	}
	return c
}
