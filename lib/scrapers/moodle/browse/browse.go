// Package browse scrapes the server-rendered course catalog pages:
// categories, courses, course sections and downloadable resources. All
// extraction goes through ordered selector chains so that the several
// markup generations Moodle has shipped for the same entity keep working.
package browse

import (
	"bytes"
	"net/url"

	"moodle-bridge/lib/scrapers/moodle/core"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("moodle-bridge.scrapers.moodle.browse")

type Client struct {
	Core *core.Client
}

func NewClient(coreClient *core.Client) Client {
	return Client{Core: coreClient}
}

func parseDoc(res *resty.Response) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}

// queryParam returns the named query parameter of href, or "" when href
// does not parse or the parameter is absent. Ids are only ever derived
// from a real link, never fabricated.
func queryParam(href, key string) string {
	link, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return link.Query().Get(key)
}
