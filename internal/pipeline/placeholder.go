package pipeline

import "strings"

// placeholderSet maps every recognized placeholder family to the
// string it resolves to, keyed by the literal token as it appears in a
// personality's system prompt template. Longer/more-specific tokens must
// be tried before shorter ones that are substrings of them (spec DESIGN
// NOTES: "case-insensitive longest-match-first").
type placeholderSet struct {
	tokens []string // sorted longest-first
	value  map[string]string
}

// substitutePlaceholders replaces {user}/{{user}}, {assistant}/{{char}},
// {shape}/{personality} (and their case variants) with the supplied
// values, matching the longest candidate token first so that, e.g.,
// "{{char}}" is not partially matched by a shorter "{char}" rule ahead of
// it in iteration order.
func substitutePlaceholders(template string, userName, assistantName, personalityName string) string {
	replacements := map[string]string{
		"{{user}}":        userName,
		"{user}":          userName,
		"{{char}}":        assistantName,
		"{assistant}":     assistantName,
		"{personality}":   personalityName,
		"{shape}":         personalityName,
	}

	tokens := make([]string, 0, len(replacements))
	for t := range replacements {
		tokens = append(tokens, t)
	}
	// Longest-first so "{{user}}" is matched before any shorter token that
	// might otherwise be found first inside it.
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			if len(tokens[j]) > len(tokens[i]) {
				tokens[i], tokens[j] = tokens[j], tokens[i]
			}
		}
	}

	result := template
	for _, token := range tokens {
		result = replaceCaseInsensitive(result, token, replacements[token])
	}
	return result
}

// replaceCaseInsensitive replaces every case-insensitive occurrence of
// token in s with value, preserving the rest of s untouched.
func replaceCaseInsensitive(s, token, value string) string {
	if token == "" {
		return s
	}
	lowerS := strings.ToLower(s)
	lowerToken := strings.ToLower(token)

	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lowerS[i:], lowerToken)
		if idx < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+idx])
		b.WriteString(value)
		i += idx + len(token)
	}
	return b.String()
}

// protectedTags lists the XML-ish section tags whose literal spelling in
// user-supplied content must be neutralized, so nothing a user types can
// masquerade as one of the prompt's own structural sections. Every other
// use of '<'/'>' — including emoticons like "<3" — is left untouched, per
// DESIGN NOTES' "XML-tag escaping only for protected tags".
var protectedTags = []string{"persona", "protocol", "identity_constraints", "platform_constraints"}

// escapeExceptProtectedTags escapes only occurrences of a protected tag's
// open or close form (case-insensitively) found in s; it leaves every
// other angle bracket in s untouched.
func escapeExceptProtectedTags(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if matched, length := matchProtectedTag(s[i:]); matched != "" {
			escaped := strings.Replace(matched, "<", "&lt;", 1)
			escaped = strings.Replace(escaped, ">", "&gt;", 1)
			b.WriteString(escaped)
			i += length
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func matchProtectedTag(s string) (matched string, length int) {
	if len(s) == 0 || s[0] != '<' {
		return "", 0
	}
	lower := strings.ToLower(s)
	for _, t := range protectedTags {
		open := "<" + t + ">"
		closeTag := "</" + t + ">"
		if strings.HasPrefix(lower, open) {
			return s[:len(open)], len(open)
		}
		if strings.HasPrefix(lower, closeTag) {
			return s[:len(closeTag)], len(closeTag)
		}
	}
	return "", 0
}
