package provider

import (
	"context"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// StatementRow is one labelled line of the statement table; Values align with StatementTable.Years
type StatementRow struct {
	Label  string
	Values []string
}

// StatementTable is the annual statement grid: columns are fiscal years, rows are vendor labels
type StatementTable struct {
	Code  string
	Years []int
	Rows  []StatementRow
}

// FetchFinancials fetches the annual statement table of one entity
func (c *Client) FetchFinancials(ctx context.Context, code string) (*StatementTable, error) {
	doc, err := c.fetchDocument(ctx, fmt.Sprintf("/stocks/%s/financials", code), nil)
	if err != nil {
		return nil, err
	}

	table, err := parseFinancials(doc)
	if err != nil {
		return nil, fmt.Errorf("financials %s: %w", code, err)
	}
	table.Code = code

	c.logger.WithFields(map[string]interface{}{
		"code":  code,
		"years": len(table.Years),
		"rows":  len(table.Rows),
	}).Debug("Fetched financials")
	return table, nil
}

func parseFinancials(doc *goquery.Document) (*StatementTable, error) {
	grid := doc.Find("table.financials").First()
	if grid.Length() == 0 {
		return nil, fmt.Errorf("no statement table")
	}

	table := &StatementTable{}
	// column index -> year; headings that carry no year (e.g. "Forecast") are skipped
	var columns []int
	grid.Find("thead th").Each(func(i int, th *goquery.Selection) {
		if i == 0 {
			return
		}
		m := yearRe.FindString(cellText(th))
		if m == "" {
			columns = append(columns, -1)
			return
		}
		year, _ := strconv.Atoi(m)
		columns = append(columns, len(table.Years))
		table.Years = append(table.Years, year)
	})
	if len(table.Years) == 0 {
		return nil, fmt.Errorf("no fiscal year columns")
	}

	grid.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		label := cellText(tr.Find("th").First())
		if label == "" {
			return
		}
		row := StatementRow{Label: label, Values: make([]string, len(table.Years))}
		tr.Find("td").Each(func(i int, td *goquery.Selection) {
			if i >= len(columns) || columns[i] < 0 {
				return
			}
			row.Values[columns[i]] = cellText(td)
		})
		table.Rows = append(table.Rows, row)
	})
	return table, nil
}
