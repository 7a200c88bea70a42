package itpec

import (
	"net/url"
	"path"
	"regexp"
)

var yearPattern = regexp.MustCompile(`(\d{2})?(\d{4})`)

// YearFromText extracts the four-digit year from texts such as "2024 April Exam",
// "2019S_FE.pdf", or "IPApril2012.zip".
func YearFromText(text string) (string, bool) {
	match := yearPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[2], true
}

// IsValidFileURL reports whether the URL path ends with a file extension.
func IsValidFileURL(rawURL string) bool {
	parsedURL, parseError := url.Parse(rawURL)
	if parseError != nil {
		return false
	}
	return len(path.Ext(parsedURL.Path)) > 0
}

// FileNameFromURL returns the last path element of the URL.
func FileNameFromURL(rawURL string) string {
	parsedURL, parseError := url.Parse(rawURL)
	if parseError != nil {
		return path.Base(rawURL)
	}
	return path.Base(parsedURL.Path)
}

func pathFromURL(rawURL string) string {
	parsedURL, parseError := url.Parse(rawURL)
	if parseError != nil {
		return rawURL
	}
	return parsedURL.Path
}
