package tts

import "strings"

// maxUnitLen is the §4.7 step-1 segmentation bound: utterance units stay
// under this many characters so a single synthesis call never blocks the
// pipeline for long, and so cache keys stay granular enough to reuse across
// turns that share a common clause.
const maxUnitLen = 200

var sentenceEnders = map[rune]bool{'.': true, '!': true, '?': true, '…': true}

// segment splits text into ≤maxUnitLen units on sentence boundaries,
// preserving the terminating punctuation on each unit. A sentence longer
// than the bound is further split on the nearest preceding whitespace so no
// unit ever exceeds it.
func segment(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if sentenceEnders[r] {
			end := i + 1
			// Swallow any immediately-following closing quote/paren so it
			// stays attached to its sentence.
			for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')' || runes[end] == '»') {
				end++
			}
			sentences = append(sentences, strings.TrimSpace(string(runes[start:end])))
			start = end
		}
	}
	if start < len(runes) {
		if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
			sentences = append(sentences, rest)
		}
	}

	var units []string
	for _, s := range sentences {
		units = append(units, splitLong(s)...)
	}
	return units
}

// splitLong breaks a single sentence into ≤maxUnitLen chunks on whitespace
// boundaries, used when a sentence itself exceeds the cap.
func splitLong(s string) []string {
	if len([]rune(s)) <= maxUnitLen {
		return []string{s}
	}

	var out []string
	words := strings.Fields(s)
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > maxUnitLen {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
