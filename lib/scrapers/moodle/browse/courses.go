package browse

import (
	"context"
	"fmt"

	"moodle-bridge/lib/htmlutil"
	"moodle-bridge/lib/scrapers/moodle/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

type Course struct {
	Id   string
	Name string
	Url  string
}

// several markup generations for the same logical entity, first chain
// entry that matches anything wins
var courseBoxSelectors = []string{
	"div.coursebox",
	"div.course-info-container",
	"div.card",
}

var courseNameSelectors = []string{
	"div.coursename a",
	"div.course-name a",
	"h3.coursename a",
}

// Courses lists the courses of one category. No matching boxes is an
// empty result, not an error.
func (c Client) Courses(ctx context.Context, categoryId string) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "client:Courses")
	defer span.End()

	res, err := c.Core.Http.R().
		SetContext(ctx).
		SetQueryParam("categoryid", categoryId).
		Get("/course/index.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, fmt.Errorf("fetch category %s: %w", categoryId, err)
	}
	if err := core.StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "category page returned an error status")
		return nil, fmt.Errorf("fetch category %s: %w", categoryId, err)
	}
	doc, err := parseDoc(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	boxes := htmlutil.FirstMatch(doc.Selection, courseBoxSelectors...)
	if boxes == nil {
		return nil, nil
	}

	var courses []Course
	boxes.Each(func(_ int, box *goquery.Selection) {
		link := htmlutil.FirstMatch(box, courseNameSelectors...)
		if link == nil {
			// no titled container, fall back to the first course-view link
			candidate := box.Find(`a[href*="course/view.php"]`)
			if candidate.Length() == 0 {
				return
			}
			link = candidate
		}

		anchor := link.First()
		name := htmlutil.CleanText(anchor.Text())
		if name == "" {
			return
		}
		href := anchor.AttrOr("href", "")
		courses = append(courses, Course{
			Id:   queryParam(href, "id"),
			Name: name,
			Url:  href,
		})
	})

	return courses, nil
}
