package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Quote is the key/value indicator table of one entity, labels as the vendor prints them
type Quote struct {
	Code   string
	AsOf   time.Time
	Fields map[string]string
}

// FetchQuote fetches the indicator page of one entity. A page without a
// date stamp is dated today.
func (c *Client) FetchQuote(ctx context.Context, code string) (*Quote, error) {
	doc, err := c.fetchDocument(ctx, fmt.Sprintf("/stocks/%s/quote", code), nil)
	if err != nil {
		return nil, err
	}

	q := parseQuote(doc)
	q.Code = code
	if q.AsOf.IsZero() {
		q.AsOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if len(q.Fields) == 0 {
		return nil, fmt.Errorf("quote %s: no indicator table", code)
	}
	return q, nil
}

func parseQuote(doc *goquery.Document) *Quote {
	q := &Quote{Fields: make(map[string]string)}
	if d, ok := parseDate(cellText(doc.Find(".as-of").First())); ok {
		q.AsOf = d
	}

	doc.Find("table.indicators tr").Each(func(_ int, tr *goquery.Selection) {
		label := cellText(tr.Find("th").First())
		if label == "" {
			return
		}
		q.Fields[label] = cellText(tr.Find("td").First())
	})
	return q
}
