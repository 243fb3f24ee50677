package browse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"moodle-bridge/lib/htmlutil"
	"moodle-bridge/lib/scrapers/moodle/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

type Subcategory struct {
	Name string
	Url  string
}

type Category struct {
	Id            string
	Name          string
	Url           string
	Subcategories []Subcategory
	// Incomplete marks a category whose own page could not be fetched,
	// the entry is kept with an empty subcategory list instead of
	// aborting the whole listing.
	Incomplete bool
}

// Categories lists the course categories from the index page "jump to"
// selector, then visits each category page for its course boxes.
func (c Client) Categories(ctx context.Context) ([]Category, error) {
	ctx, span := tracer.Start(ctx, "client:Categories")
	defer span.End()

	res, err := c.Core.Http.R().
		SetContext(ctx).
		Get("/course/index.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch course index")
		return nil, fmt.Errorf("fetch course index: %w", err)
	}
	if err := core.StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "course index returned an error status")
		return nil, fmt.Errorf("fetch course index: %w", err)
	}
	doc, err := parseDoc(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	var categories []Category
	doc.Find("select[name=jump] option").Each(func(_ int, opt *goquery.Selection) {
		value := opt.AttrOr("value", "")
		if !strings.Contains(value, "categoryid") {
			return
		}
		id := queryParam(value, "categoryid")
		if id == "" {
			return
		}

		category := Category{
			Id:   id,
			Name: htmlutil.CleanText(opt.Text()),
			Url:  value,
		}

		subcategories, err := c.subcategories(ctx, value)
		if err != nil {
			// one bad category page must not abort the listing
			slog.WarnContext(ctx, "failed to fetch category page",
				"category", category.Name, "id", id, "err", err)
			category.Incomplete = true
		} else {
			category.Subcategories = subcategories
		}
		categories = append(categories, category)
	})

	return categories, nil
}

func (c Client) subcategories(ctx context.Context, categoryUrl string) ([]Subcategory, error) {
	res, err := c.Core.Http.R().
		SetContext(ctx).
		Get(categoryUrl)
	if err != nil {
		return nil, err
	}
	if err := core.StatusErr(res); err != nil {
		return nil, err
	}
	doc, err := parseDoc(res)
	if err != nil {
		return nil, err
	}

	var entries []Subcategory
	doc.Find("div.coursebox").Each(func(_ int, box *goquery.Selection) {
		link := box.Find("div.coursename a").First()
		name := htmlutil.CleanText(link.Text())
		if name == "" {
			return
		}
		entries = append(entries, Subcategory{
			Name: name,
			Url:  link.AttrOr("href", ""),
		})
	})
	return entries, nil
}
