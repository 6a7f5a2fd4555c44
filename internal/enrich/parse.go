package enrich

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/mindbase/internal/models"
)

// MaxLabelLen bounds a single category label, in runes.
const MaxLabelLen = 32

type analysis struct {
	Summary    string
	Categories []string
}

// parseAnalysis reads the model reply. It accepts, in order: a JSON object
// (optionally fenced or surrounded by prose), "SUMMARY:"/"CATEGORIES:" lines,
// or a bare comma separated category list.
func parseAnalysis(raw string) analysis {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return analysis{}
	}

	if a, ok := parseJSON(text); ok {
		return a
	}
	if a, ok := parseLines(text); ok {
		return a
	}
	// A bare list must be one line of label-shaped pieces; anything else is
	// prose such as a refusal and yields no categories.
	if strings.Contains(text, "\n") {
		return analysis{}
	}
	labels := splitLabels(text)
	for _, l := range labels {
		if !looksLikeLabel(l) {
			return analysis{}
		}
	}
	return analysis{Categories: labels}
}

// MaxLabelWords bounds the words in a label accepted from a bare list.
const MaxLabelWords = 3

// looksLikeLabel rejects sentence fragments: too many words, a colon, or
// sentence punctuation.
func looksLikeLabel(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(strings.Fields(s)) > MaxLabelWords {
		return false
	}
	if strings.ContainsAny(s, ":!?") {
		return false
	}
	return !strings.HasSuffix(s, ".")
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag such as ```json.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseJSON(s string) (analysis, bool) {
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return analysis{}, false
	}
	var payload struct {
		Summary    string          `json:"summary"`
		Categories json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &payload); err != nil {
		return analysis{}, false
	}

	a := analysis{Summary: strings.TrimSpace(payload.Summary)}
	if len(payload.Categories) > 0 {
		var list []string
		if err := json.Unmarshal(payload.Categories, &list); err == nil {
			a.Categories = list
		} else {
			var joined string
			if err := json.Unmarshal(payload.Categories, &joined); err == nil {
				a.Categories = splitLabels(joined)
			}
		}
	}
	return a, true
}

func parseLines(s string) (analysis, bool) {
	var a analysis
	found := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.Trim(key, "*# ")) {
		case "SUMMARY":
			a.Summary = strings.TrimSpace(strings.Trim(value, "* "))
			found = true
		case "CATEGORIES", "CATEGORY":
			a.Categories = splitLabels(value)
			found = true
		}
	}
	return a, found
}

func splitLabels(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
}

// normalizeLabels trims, drops empty or oversized labels, de-duplicates
// case-insensitively and caps the result at models.MaxCategories.
// Labels matching the vocabulary take the vocabulary's spelling.
func normalizeLabels(labels []string, vocabulary []string) []string {
	canonical := make(map[string]string, len(vocabulary))
	for _, v := range vocabulary {
		canonical[strings.ToLower(v)] = v
	}

	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.Trim(strings.TrimSpace(l), `"'#*-. `)
		l = strings.Join(strings.Fields(l), " ")
		if l == "" || utf8.RuneCountInString(l) > MaxLabelLen {
			continue
		}
		key := strings.ToLower(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		if c, ok := canonical[key]; ok {
			l = c
		}
		out = append(out, l)
		if len(out) == models.MaxCategories {
			break
		}
	}
	return out
}
