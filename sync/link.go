package sync

import "strings"

// NextPageURL extracts the rel="next" target from a Link header. It returns
// an empty string on the last page.
func NextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, param := range segments[1:] {
			param = strings.ReplaceAll(strings.TrimSpace(param), " ", "")
			if strings.EqualFold(param, `rel="next"`) || strings.EqualFold(param, "rel=next") {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}
		target := strings.TrimSpace(segments[0])
		start := strings.IndexByte(target, '<')
		end := strings.LastIndexByte(target, '>')
		if start < 0 || end <= start {
			continue
		}
		return strings.TrimSpace(target[start+1 : end])
	}
	return ""
}
