package notify

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FormatReactionSummary renders reaction counts as "😂×2 ❤️×1", highest count
// first and ties broken by emoji.
func FormatReactionSummary(reactions map[string]int) string {
	type entry struct {
		emoji string
		count int
	}
	entries := make([]entry, 0, len(reactions))
	for emoji, count := range reactions {
		if count > 0 {
			entries = append(entries, entry{emoji, count})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].emoji < entries[j].emoji
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.emoji + "×" + strconv.Itoa(e.count)
	}
	return strings.Join(parts, " ")
}

func preview(text string, max int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
