package extract

import (
	"regexp"
	"time"

	"github.com/clearfolio/statement-parser/internal/document"
)

var dateFormats = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "2006-01-02"},
	{regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`), "02.01.2006"},
	{regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), "02/01/2006"},
	{regexp.MustCompile(`\b\d{1,2} (January|February|March|April|May|June|July|August|September|October|November|December) \d{4}\b`), "2 January 2006"},
}

// DetectDocumentDate scans page text for a statement date, preferring the
// first page. Returns the zero time when nothing parses.
func DetectDocumentDate(pages []document.Page) time.Time {
	for _, page := range pages {
		if !page.Usable() {
			continue
		}
		for _, f := range dateFormats {
			if m := f.re.FindString(page.Text); m != "" {
				if t, err := time.Parse(f.layout, m); err == nil {
					return t
				}
			}
		}
	}
	return time.Time{}
}
