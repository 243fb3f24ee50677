package browse

import (
	"context"
	"fmt"
	"strings"

	"moodle-bridge/lib/htmlutil"
	"moodle-bridge/lib/scrapers/moodle/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

type Activity struct {
	Name string
	Url  string
	Id   string
	Type string
}

type Section struct {
	Id         string
	Number     string
	Name       string
	Summary    string
	Activities []Activity
}

type CourseContent struct {
	CourseId string
	Title    string
	Sections []Section
}

const activityTypePrefix = "modtype_"

// Chapters fetches a course view page and extracts its sections together
// with every activity inside them.
func (c Client) Chapters(ctx context.Context, courseId string) (CourseContent, error) {
	ctx, span := tracer.Start(ctx, "client:Chapters")
	defer span.End()

	res, err := c.Core.Http.R().
		SetContext(ctx).
		SetQueryParam("id", courseId).
		Get("/course/view.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return CourseContent{}, fmt.Errorf("fetch course %s: %w", courseId, err)
	}
	if err := core.StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "course page returned an error status")
		return CourseContent{}, fmt.Errorf("fetch course %s: %w", courseId, err)
	}
	doc, err := parseDoc(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return CourseContent{}, err
	}

	content := CourseContent{
		CourseId: courseId,
		Title:    htmlutil.FirstText(doc.Selection, "h1.h2", "h1"),
	}

	doc.Find(`li.section[data-for="section"]`).Each(func(_ int, sel *goquery.Selection) {
		section := Section{
			Id:      sel.AttrOr("data-id", ""),
			Number:  sel.AttrOr("data-number", ""),
			Name:    htmlutil.FirstText(sel, "h3.sectionname"),
			Summary: htmlutil.FirstText(sel, "div.summarytext"),
		}

		sel.Find("li.activity").Each(func(_ int, act *goquery.Selection) {
			activity := parseActivity(act)
			if activity.Name == "" && activity.Url == "" {
				// neither a name nor a link, this is layout noise
				return
			}
			section.Activities = append(section.Activities, activity)
		})

		content.Sections = append(content.Sections, section)
	})

	return content, nil
}

func parseActivity(act *goquery.Selection) Activity {
	name := act.AttrOr("data-activityname", "")
	if name == "" {
		name = htmlutil.FirstAttr(act, "data-activityname", `div[data-region="activity-information"]`)
	}
	if name == "" {
		name = htmlutil.FirstText(act, "span.instancename")
	}

	href := act.Find("a.aalink").First().AttrOr("href", "")

	activity := Activity{
		Name: name,
		Url:  href,
		Id:   queryParam(href, "id"),
	}
	for _, class := range strings.Fields(act.AttrOr("class", "")) {
		if strings.HasPrefix(class, activityTypePrefix) {
			activity.Type = strings.TrimPrefix(class, activityTypePrefix)
			break
		}
	}
	return activity
}
