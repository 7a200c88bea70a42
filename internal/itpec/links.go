package itpec

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	tableSelectorConstant           = "table"
	rowSelectorConstant             = "tr"
	headerMarkerSelectorConstant    = "td > span"
	cellDivisionSelectorConstant    = "td > div"
	questionLinkSelectorConstant    = "td > div > a[href]"
	countryCellSelectorConstant     = "td[colspan='4']"
	resultYearMonthSelectorConstant = "td:nth-of-type(1) > div[align=left]"
	resultLinkSelectorTemplate      = "td:nth-of-type(%d) > div > a[href]"
	hrefAttributeConstant           = "href"
	textNodeNameConstant            = "#text"
	missingLinkMessageConstant      = "row without archive link skipped"
	missingYearMonthMessageConstant = "row without year-month skipped"
	invalidFileURLMessageConstant   = "invalid file url skipped"
	unresolvableLinkMessageConstant = "unresolvable link skipped"
	missingResultTableMessage       = "no result table found"
	resultYearUnparsedMessage       = "failed to parse year from result row"
	rowFieldNameConstant            = "row"
	linkFieldNameConstant           = "link"
	yearMonthFieldNameConstant      = "year_month"
	firstResultLinkColumnConstant   = 2
	lastResultLinkColumnConstant    = 4
)

var resultLinkSelectors = buildResultLinkSelectors()

// QuestionLink pairs a past-exam archive with the exam period it belongs to.
type QuestionLink struct {
	YearMonth string
	Link      string
}

// ResultLink is a passer-list archive published for a country and exam period.
type ResultLink struct {
	YearMonth string
	Country   string
	Link      string
}

// ExtractQuestionLinks collects archive links from the past exam question tables.
// Links are absolute, unique, and sorted by exam period then link.
func ExtractQuestionLinks(baseURL *url.URL, document *goquery.Document, logger *zap.Logger) []QuestionLink {
	unique := map[QuestionLink]struct{}{}

	outerTables(document).Each(func(_ int, table *goquery.Selection) {
		collectQuestionRows(baseURL, table, logger, unique)
	})

	links := make([]QuestionLink, 0, len(unique))
	for link := range unique {
		links = append(links, link)
	}
	sort.Slice(links, func(leftIndex int, rightIndex int) bool {
		if links[leftIndex].YearMonth != links[rightIndex].YearMonth {
			return links[leftIndex].YearMonth < links[rightIndex].YearMonth
		}
		return links[leftIndex].Link < links[rightIndex].Link
	})
	return links
}

func collectQuestionRows(baseURL *url.URL, table *goquery.Selection, logger *zap.Logger, unique map[QuestionLink]struct{}) {
	ownRows(table).Each(func(_ int, row *goquery.Selection) {
		if rowFind(row, headerMarkerSelectorConstant).Length() > 0 {
			return
		}

		yearMonthElement := rowFind(row, cellDivisionSelectorConstant).First()
		linkElement := rowFind(row, questionLinkSelectorConstant).First()
		if linkElement.Length() == 0 {
			logger.Debug(missingLinkMessageConstant, zap.String(rowFieldNameConstant, strippedText(row)))
			return
		}
		if yearMonthElement.Length() == 0 {
			logger.Debug(missingYearMonthMessageConstant, zap.String(rowFieldNameConstant, strippedText(row)))
			return
		}

		link, resolved := resolveLink(baseURL, linkElement)
		if !resolved {
			logger.Info(unresolvableLinkMessageConstant, zap.String(rowFieldNameConstant, strippedText(row)))
			return
		}
		if !IsValidFileURL(link) {
			logger.Info(invalidFileURLMessageConstant, zap.String(linkFieldNameConstant, link))
			return
		}

		unique[QuestionLink{YearMonth: strippedText(yearMonthElement), Link: link}] = struct{}{}
	})
}

// ExtractResultLinks collects passer-list archives from the first table on the results page,
// grouped by the year of their exam period. Country header rows apply to the rows that follow.
func ExtractResultLinks(baseURL *url.URL, document *goquery.Document, logger *zap.Logger) map[string][]ResultLink {
	links := map[string][]ResultLink{}

	table := outerTables(document).First()
	if table.Length() == 0 {
		logger.Error(missingResultTableMessage)
		return links
	}

	country := ""
	ownRows(table).Each(func(_ int, row *goquery.Selection) {
		if rowFind(row, cellDivisionSelectorConstant).Length() == 0 {
			return
		}
		if countryCell := rowFind(row, countryCellSelectorConstant).First(); countryCell.Length() > 0 {
			country = strippedText(countryCell)
			return
		}

		yearMonthElement := rowFind(row, resultYearMonthSelectorConstant).First()
		if yearMonthElement.Length() == 0 {
			logger.Error(resultYearUnparsedMessage, zap.String(rowFieldNameConstant, strippedText(row)))
			return
		}
		yearMonth := strippedText(yearMonthElement)

		rowLinks := make([]ResultLink, 0, len(resultLinkSelectors))
		for _, selector := range resultLinkSelectors {
			linkElement := rowFind(row, selector).First()
			if linkElement.Length() == 0 {
				continue
			}
			link, resolved := resolveLink(baseURL, linkElement)
			if !resolved {
				continue
			}
			rowLinks = append(rowLinks, ResultLink{YearMonth: yearMonth, Country: country, Link: link})
		}

		year, found := YearFromText(yearMonth)
		if !found {
			logger.Error(resultYearUnparsedMessage, zap.String(yearMonthFieldNameConstant, yearMonth))
			return
		}
		links[year] = append(links[year], rowLinks...)
	})
	return links
}

// outerTables selects tables that are not nested inside another table.
func outerTables(document *goquery.Document) *goquery.Selection {
	return document.Find(tableSelectorConstant).FilterFunction(func(_ int, table *goquery.Selection) bool {
		return table.ParentsFiltered(tableSelectorConstant).Length() == 0
	})
}

// ownRows selects the rows of table itself, leaving out rows of nested tables.
func ownRows(table *goquery.Selection) *goquery.Selection {
	return table.Find(rowSelectorConstant).FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest(tableSelectorConstant).IsSelection(table)
	})
}

// rowFind matches selector within the row's own cells.
func rowFind(row *goquery.Selection, selector string) *goquery.Selection {
	return row.Find(selector).FilterFunction(func(_ int, element *goquery.Selection) bool {
		return element.Closest(rowSelectorConstant).IsSelection(row)
	})
}

func resolveLink(baseURL *url.URL, element *goquery.Selection) (string, bool) {
	href, exists := element.Attr(hrefAttributeConstant)
	if !exists || len(strings.TrimSpace(href)) == 0 {
		return "", false
	}
	reference, parseError := url.Parse(strings.TrimSpace(href))
	if parseError != nil {
		return "", false
	}
	if baseURL == nil {
		return reference.String(), true
	}
	return baseURL.ResolveReference(reference).String(), true
}

// strippedText concatenates every descendant text node with surrounding whitespace removed.
func strippedText(selection *goquery.Selection) string {
	var builder strings.Builder
	var collect func(*goquery.Selection)
	collect = func(current *goquery.Selection) {
		current.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == textNodeNameConstant {
				builder.WriteString(strings.TrimSpace(child.Text()))
				return
			}
			collect(child)
		})
	}
	collect(selection)
	return builder.String()
}

func buildResultLinkSelectors() []string {
	selectors := make([]string, 0, lastResultLinkColumnConstant-firstResultLinkColumnConstant+1)
	for column := firstResultLinkColumnConstant; column <= lastResultLinkColumnConstant; column++ {
		selectors = append(selectors, fmt.Sprintf(resultLinkSelectorTemplate, column))
	}
	return selectors
}
