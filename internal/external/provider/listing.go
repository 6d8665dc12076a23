package provider

import (
	"context"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-screener/internal/numeric"
)

// ListingRow is one security from the listing pages
type ListingRow struct {
	Code      string
	Name      string
	Market    string
	Sector    string
	MarketCap numeric.Value
}

// FetchListing fetches one listing page. hasMore reports a next-page link.
func (c *Client) FetchListing(ctx context.Context, page int) (rows []ListingRow, hasMore bool, err error) {
	doc, err := c.fetchDocument(ctx, "/stocks/listing", url.Values{"page": {strconv.Itoa(page)}})
	if err != nil {
		return nil, false, err
	}

	rows, hasMore = parseListing(doc)
	c.logger.WithFields(map[string]interface{}{
		"page":     page,
		"count":    len(rows),
		"has_more": hasMore,
	}).Debug("Fetched listing page")
	return rows, hasMore, nil
}

// FetchAllListings walks listing pages until there is no next page or maxPages is reached
// ⭐ SSOT: listing discovery
func (c *Client) FetchAllListings(ctx context.Context, maxPages int) ([]ListingRow, error) {
	var all []ListingRow
	for page := 1; page <= maxPages; page++ {
		rows, hasMore, err := c.FetchListing(ctx, page)
		if err != nil {
			return all, err
		}
		all = append(all, rows...)
		if !hasMore || len(rows) == 0 {
			break
		}
	}
	return all, nil
}

func parseListing(doc *goquery.Document) ([]ListingRow, bool) {
	var rows []ListingRow
	doc.Find("table#listing tbody tr").Each(func(_ int, tr *goquery.Selection) {
		code := cellText(tr.Find("td.code"))
		if code == "" {
			return
		}
		rows = append(rows, ListingRow{
			Code:      code,
			Name:      cellText(tr.Find("td.name")),
			Market:    cellText(tr.Find("td.market")),
			Sector:    cellText(tr.Find("td.sector")),
			MarketCap: numeric.Normalize(cellText(tr.Find("td.mcap"))),
		})
	})
	return rows, doc.Find("a.next").Length() > 0
}
