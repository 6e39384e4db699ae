package rlmengine

import "regexp"

// markdownLink matches a Markdown link's URL, e.g. "[text](https://...)",
// per spec §4.6 step 6's "scan for markdown links".
var markdownLink = regexp.MustCompile(`\[[^\]]*\]\((https?://[^\s)]+)\)`)

// extractCitations returns the deduplicated, in-order URLs cited as
// Markdown links in answer.
func extractCitations(answer string) []string {
	matches := markdownLink.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var urls []string
	for _, m := range matches {
		url := m[1]
		if seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	return urls
}
