// internal/automation/extractor.go
package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/browser"
)

// BadgeQuery finds the item whose Label text equals Target and returns the
// text of its Badge.
type BadgeQuery struct {
	Items  string
	Label  string
	Badge  string
	Target string
}

// Run returns nil when no item matches.
func (q BadgeQuery) Run(doc *goquery.Document) *string {
	var found *string
	doc.Find(q.Items).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		label := item.Find(q.Label).First()
		if label.Length() == 0 || trimmedText(label) != q.Target {
			return true
		}
		badge := item.Find(q.Badge).First()
		if badge.Length() == 0 {
			return true
		}
		text := trimmedText(badge)
		found = &text
		return false
	})
	return found
}

// TrailingDropQuery finds the first row whose first cell equals Target and
// has more than one value cell, and returns every value cell but the last.
type TrailingDropQuery struct {
	Rows      string
	FirstCell string
	Values    string
	Target    string
}

// Run returns nil when no row matches.
func (q TrailingDropQuery) Run(doc *goquery.Document) []string {
	var values []string
	doc.Find(q.Rows).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		first := row.Find(q.FirstCell).First()
		if first.Length() == 0 || trimmedText(first) != q.Target {
			return true
		}
		cells := row.Find(q.Values)
		if cells.Length() <= 1 {
			return true
		}
		values = make([]string, 0, cells.Length()-1)
		cells.Slice(0, cells.Length()-1).Each(func(_ int, cell *goquery.Selection) {
			values = append(values, trimmedText(cell))
		})
		return false
	})
	return values
}

// SeriesQuery pairs KeyColumn and ValueColumn of every row after the first
// Skip rows that has at least MinCells cells.
type SeriesQuery struct {
	Rows        string
	Cells       string
	Skip        int
	MinCells    int
	KeyColumn   int
	ValueColumn int
}

func (q SeriesQuery) Run(doc *goquery.Document) []schemas.InvestmentByYear {
	series := []schemas.InvestmentByYear{}
	doc.Find(q.Rows).Each(func(i int, row *goquery.Selection) {
		if i < q.Skip {
			return
		}
		cells := row.Find(q.Cells)
		if cells.Length() < q.MinCells {
			return
		}
		series = append(series, schemas.InvestmentByYear{
			Year:       trimmedText(cells.Eq(q.KeyColumn)),
			Investment: trimmedText(cells.Eq(q.ValueColumn)),
		})
	})
	return series
}

func trimmedText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// Extractor reads the final page once the workflow has completed.
type Extractor struct {
	Badge  BadgeQuery
	Plans  TrailingDropQuery
	Series SeriesQuery
	logger *zap.Logger
}

// NewExtractor returns an extractor for the plan summary page.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{
		Badge: BadgeQuery{
			Items:  ".list-plan-summary .list-group-item",
			Label:  "span",
			Badge:  ".badge",
			Target: "Income /mo (Gross)",
		},
		Plans: TrailingDropQuery{
			Rows:      "tr",
			FirstCell: "td",
			Values:    "td.text-right",
			Target:    "Start of Plan",
		},
		Series: SeriesQuery{
			Rows:        "tr",
			Cells:       "td",
			Skip:        2,
			MinCells:    3,
			KeyColumn:   0,
			ValueColumn: 2,
		},
		logger: logger.Named("extractor"),
	}
}

// Extract reads the page HTML and builds the result. It never fails: when
// the page cannot be read the result keeps its defaults and the
// *ExtractionError is logged.
func (e *Extractor) Extract(ctx context.Context, page browser.Page) *schemas.AutomationResult {
	html, err := page.HTML(ctx)
	if err != nil {
		e.logger.Warn("Extraction skipped.", zap.Error(&ExtractionError{Query: "page html", Err: err}))
		return schemas.NewAutomationResult()
	}
	result, err := e.ExtractHTML(html)
	if err != nil {
		e.logger.Warn("Extraction skipped.", zap.Error(err))
		return schemas.NewAutomationResult()
	}
	return result
}

// ExtractHTML runs the queries against an HTML document. The same document
// always produces the same result.
func (e *Extractor) ExtractHTML(html string) (*schemas.AutomationResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ExtractionError{Query: "page html", Err: fmt.Errorf("parsing: %w", err)}
	}

	badge := e.Badge.Run(doc)
	plans := e.Plans.Run(doc)
	series := e.Series.Run(doc)

	if badge == nil {
		e.logger.Debug("Monthly income badge not found.", zap.String("label", e.Badge.Target))
	}
	if plans == nil {
		e.logger.Debug("Plan row not found.", zap.String("label", e.Plans.Target))
	}
	return Assemble(badge, plans, series), nil
}

// Assemble builds the result in one step. The series is only kept when the
// plan row was found so the two table fields stay consistent.
func Assemble(badge *string, plans []string, series []schemas.InvestmentByYear) *schemas.AutomationResult {
	result := schemas.NewAutomationResult()
	result.MonthlyIncomeGross = badge
	if plans == nil {
		return result
	}
	result.Plans = append(result.Plans, plans...)
	result.InvestmentsByYears = append(result.InvestmentsByYears, series...)
	return result
}
