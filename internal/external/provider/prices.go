package provider

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-screener/internal/numeric"
)

// PriceBar is one daily bar
type PriceBar struct {
	Date   time.Time
	Open   numeric.Value
	High   numeric.Value
	Low    numeric.Value
	Close  numeric.Value
	Volume numeric.Value
}

// FetchPrices fetches up to days daily bars, oldest first
func (c *Client) FetchPrices(ctx context.Context, code string, days int) ([]PriceBar, error) {
	doc, err := c.fetchDocument(ctx, fmt.Sprintf("/stocks/%s/history", code), url.Values{"days": {strconv.Itoa(days)}})
	if err != nil {
		return nil, err
	}

	bars := parsePrices(doc)
	if len(bars) > days && days > 0 {
		bars = bars[len(bars)-days:]
	}

	c.logger.WithFields(map[string]interface{}{
		"code":  code,
		"count": len(bars),
	}).Debug("Fetched prices")
	return bars, nil
}

// parsePrices reads table.history; rows with an unparseable date or close are skipped
func parsePrices(doc *goquery.Document) []PriceBar {
	var bars []PriceBar
	doc.Find("table.history tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 6 {
			return
		}
		date, ok := parseDate(cellText(cells.Eq(0)))
		if !ok {
			return
		}
		bar := PriceBar{
			Date:   date,
			Open:   numeric.Normalize(cellText(cells.Eq(1))),
			High:   numeric.Normalize(cellText(cells.Eq(2))),
			Low:    numeric.Normalize(cellText(cells.Eq(3))),
			Close:  numeric.Normalize(cellText(cells.Eq(4))),
			Volume: numeric.Normalize(cellText(cells.Eq(5))),
		}
		if !bar.Close.IsPositive() {
			return
		}
		bars = append(bars, bar)
	})

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}
