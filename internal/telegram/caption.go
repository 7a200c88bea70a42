package telegram

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tyemirov/iteehub/internal/itpec"
	"github.com/tyemirov/iteehub/internal/store"
)

const (
	lastModifiedLayoutConstant     = "2006-01-02 15:04:05-07:00"
	captionTemplateConstant        = "<a href='%s'>%s %s %s</a>\n<b>last modified: </b> %s\n\n%s"
	countrySubjectTemplateConstant = "%s of %s's"
	plainSubjectTemplateConstant   = "%s of"
	levelTagTemplateConstant       = "#%s"
	levelYearTagTemplateConstant   = "#%s_%s"
	kindTagTemplateConstant        = "#%s"
	archiveMissingTemplateConstant = "archive for %s not found at %s"
	levelMissingMessageConstant    = "archive level could not be determined from link"
)

var (
	textEscaper      = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attributeEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "'", "&#39;", "\"", "&quot;")
)

// ErrArchiveLevelUnknown indicates the link did not reveal the exam level.
var ErrArchiveLevelUnknown = errors.New(levelMissingMessageConstant)

// ArchiveMissingError reports a recorded archive that is absent from the data directory.
type ArchiveMissingError struct {
	Link string
	Path string
}

// Error describes the missing archive.
func (missingError ArchiveMissingError) Error() string {
	return fmt.Sprintf(archiveMissingTemplateConstant, missingError.Link, missingError.Path)
}

// Message is a prepared document post.
type Message struct {
	Caption string
	Path    string
}

// PrepareMessage renders the HTML caption for a recorded archive and locates its local copy.
// The path stored with the record wins; older records fall back to the layout derived from the link.
func PrepareMessage(record store.FileRecord, dataDirectory string, fileExists func(string) bool) (Message, error) {
	info := itpec.ParseLinkInfo(record.Link)
	if len(info.Level) == 0 {
		return Message{}, ErrArchiveLevelUnknown
	}
	relativePath := strings.TrimSpace(record.Path)
	if len(relativePath) > 0 {
		if year, found := itpec.YearFromRelativePath(relativePath); found {
			info.Year = year
		}
	} else {
		derivedPath, pathError := info.RelativePath()
		if pathError != nil {
			return Message{}, pathError
		}
		relativePath = derivedPath
	}
	localPath := filepath.Join(dataDirectory, filepath.FromSlash(relativePath))
	if !fileExists(localPath) {
		return Message{}, ArchiveMissingError{Link: record.Link, Path: localPath}
	}

	level := strings.ToUpper(info.Level)
	tags := []string{
		fmt.Sprintf(levelTagTemplateConstant, level),
		fmt.Sprintf(levelYearTagTemplateConstant, level, info.Year),
	}
	if session, found := sessionFromFileName(filepath.Base(localPath)); found {
		tags = append(tags, fmt.Sprintf(levelYearTagTemplateConstant, level, session))
	}
	tags = append(tags, fmt.Sprintf(kindTagTemplateConstant, info.Kind))

	kind := capitalize(string(info.Kind))
	subject := fmt.Sprintf(plainSubjectTemplateConstant, kind)
	if len(info.Country) > 0 {
		tags = append(tags, "#"+info.Country)
		subject = fmt.Sprintf(countrySubjectTemplateConstant, kind, info.Country)
	}

	lastModified := time.Unix(record.LastModified, 0).UTC().Format(lastModifiedLayoutConstant)
	caption := fmt.Sprintf(captionTemplateConstant,
		attributeEscaper.Replace(record.Link),
		textEscaper.Replace(subject),
		level,
		textEscaper.Replace(record.YearMonth),
		lastModified,
		textEscaper.Replace(strings.Join(tags, " ")),
	)
	return Message{Caption: caption, Path: localPath}, nil
}

func sessionFromFileName(fileName string) (string, bool) {
	return itpec.LinkInfo{Link: fileName}.Session()
}

func capitalize(value string) string {
	if len(value) == 0 {
		return value
	}
	return strings.ToUpper(value[:1]) + strings.ToLower(value[1:])
}
