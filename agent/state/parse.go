package state

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	responseBlockPattern = regexp.MustCompile(`(?s)<response>(.*?)</response>`)
	tagPattern           = regexp.MustCompile(`(?s)<([\w-]+)>(.*?)</([\w-]+)>`)
)

// list-valued keys are comma-separated in the model's tag output.
var listKeys = map[string]struct{}{
	"actions":    {},
	"providers":  {},
	"evaluators": {},
}

// ParseKeyValueXML extracts a flat key/value map from the loose
// tag-delimited format the planning model emits. A <response> block is
// preferred; without one the whole text is scanned for tag pairs.
// Returns nil when nothing parseable is present.
func ParseKeyValueXML(text string) map[string]any {
	if text == "" {
		return nil
	}

	// Prefer the instructed <response> wrapper; models that drop it
	// still get their naked tag pairs picked up from the full text.
	content := text
	if m := responseBlockPattern.FindStringSubmatch(text); m != nil {
		content = m[1]
	} else {
		log.Debug().Msg("no_response_block_found")
	}

	result := make(map[string]any)
	for _, m := range tagPattern.FindAllStringSubmatch(content, -1) {
		if m[1] != m[3] {
			log.Warn().Str("open", m[1]).Str("close", m[3]).Msg("mismatched_xml_tags")
			continue
		}
		key := m[1]
		value := strings.TrimSpace(unescapeXML(m[2]))

		if _, isList := listKeys[key]; isList {
			result[key] = splitList(value)
		} else if key == "simple" {
			result[key] = strings.EqualFold(value, "true")
		} else {
			result[key] = value
		}
	}

	if len(result) == 0 {
		log.Warn().Msg("no_key_value_pairs_extracted")
		return nil
	}
	return result
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func unescapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
	return replacer.Replace(s)
}
