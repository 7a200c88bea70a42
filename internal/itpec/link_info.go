package itpec

import (
	"errors"
	"path"
	"regexp"
	"strings"
)

// ArchiveKind distinguishes exam question archives from passer-list archives.
type ArchiveKind string

// Known archive kinds.
const (
	ArchiveKindQuestion ArchiveKind = "question"
	ArchiveKindResult   ArchiveKind = "result"
)

const (
	questionsDirectoryConstant        = "questions"
	resultsDirectoryConstant          = "results"
	countryPrefixSeparatorConstant    = "_"
	archiveKindUnknownMessageConstant = "archive kind could not be determined from link"
	archiveYearUnknownMessageConstant = "archive year could not be determined from link"
)

var (
	questionLevelPattern = regexp.MustCompile(`pastexamqa/([^/]+)/`)
	resultLevelPattern   = regexp.MustCompile(`(IP|FE|AP)`)
	countryPattern       = regexp.MustCompile(`all-passers-information/([^/]+)/`)
	sessionPattern       = regexp.MustCompile(`(?i)(\d{4}[AS])`)
	yearDirectoryPattern = regexp.MustCompile(`^\d{4}$`)

	// ErrArchiveKindUnknown indicates a link matched neither the question nor the result layout.
	ErrArchiveKindUnknown = errors.New(archiveKindUnknownMessageConstant)
	// ErrArchiveYearUnknown indicates a link carried no recognizable year.
	ErrArchiveYearUnknown = errors.New(archiveYearUnknownMessageConstant)
)

// LinkInfo is the metadata encoded in an ITPEC archive URL.
type LinkInfo struct {
	Link    string
	Kind    ArchiveKind
	Level   string
	Country string
	Year    string
}

// ParseLinkInfo derives archive kind, exam level, country, and year from the link path.
// Missing pieces are left empty.
func ParseLinkInfo(link string) LinkInfo {
	info := LinkInfo{Link: link}
	linkPath := pathFromURL(link)

	if match := questionLevelPattern.FindStringSubmatch(linkPath); match != nil {
		info.Kind = ArchiveKindQuestion
		info.Level = strings.ToLower(match[1])
	} else if match := resultLevelPattern.FindStringSubmatch(linkPath); match != nil {
		info.Kind = ArchiveKindResult
		info.Level = strings.ToLower(match[1])
	}

	if match := countryPattern.FindStringSubmatch(linkPath); match != nil {
		info.Country = match[1]
	}
	if year, found := YearFromText(linkPath); found {
		info.Year = year
	}
	return info
}

// FileName is the archive file name taken from the link path.
func (info LinkInfo) FileName() string {
	return FileNameFromURL(info.Link)
}

// Session extracts an exam session such as "2024A" or "2019S" from the file name.
func (info LinkInfo) Session() (string, bool) {
	match := sessionPattern.FindStringSubmatch(info.FileName())
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Directory is the archive directory relative to the data root, e.g. "2024/questions".
func (info LinkInfo) Directory() (string, error) {
	if len(info.Year) == 0 {
		return "", ErrArchiveYearUnknown
	}
	switch info.Kind {
	case ArchiveKindQuestion:
		return path.Join(info.Year, questionsDirectoryConstant), nil
	case ArchiveKindResult:
		return path.Join(info.Year, resultsDirectoryConstant), nil
	default:
		return "", ErrArchiveKindUnknown
	}
}

// RelativePath is the archive location relative to the data root.
func (info LinkInfo) RelativePath() (string, error) {
	directory, directoryError := info.Directory()
	if directoryError != nil {
		return "", directoryError
	}
	fileName := info.FileName()
	if info.Kind == ArchiveKindResult {
		fileName = PrefixedFileName(info.Country, fileName)
	}
	return path.Join(directory, fileName), nil
}

// PrefixedFileName prepends a country prefix to result archive names when one is known.
func PrefixedFileName(prefix string, fileName string) string {
	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return fileName
	}
	return trimmedPrefix + countryPrefixSeparatorConstant + fileName
}

// YearFromRelativePath returns the leading year directory of a path such as "2024/results/x.pdf".
func YearFromRelativePath(relativePath string) (string, bool) {
	firstElement, _, _ := strings.Cut(strings.TrimPrefix(relativePath, "/"), "/")
	if !yearDirectoryPattern.MatchString(firstElement) {
		return "", false
	}
	return firstElement, true
}

// QuestionsDirectory is the relative directory for question archives of a year.
func QuestionsDirectory(year string) string {
	return path.Join(year, questionsDirectoryConstant)
}

// ResultsDirectory is the relative directory for result archives of a year.
func ResultsDirectory(year string) string {
	return path.Join(year, resultsDirectoryConstant)
}
