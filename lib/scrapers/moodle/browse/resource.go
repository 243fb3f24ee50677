package browse

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"moodle-bridge/lib/scrapers/moodle/core"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var ResourceNotFound = fmt.Errorf("could not retrieve the resource")

// ResourcePayload is a downloaded resource file. Transient, never
// persisted by this package.
type ResourcePayload struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Resource downloads a resource (typically a PDF). The view page either
// redirects straight to the file or renders an intermediate page whose
// details link points at it.
func (c Client) Resource(ctx context.Context, resourceId string) (ResourcePayload, error) {
	ctx, span := tracer.Start(ctx, "client:Resource")
	defer span.End()

	res, err := c.Core.Http.R().
		SetContext(ctx).
		SetQueryParam("id", resourceId).
		Get("/mod/resource/view.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch resource view")
		return ResourcePayload{}, fmt.Errorf("fetch resource %s: %w", resourceId, err)
	}
	if err := core.StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "resource view returned an error status")
		return ResourcePayload{}, fmt.Errorf("fetch resource %s: %w", resourceId, err)
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		// the view redirected straight to the file
		return ResourcePayload{
			Content:     res.Body(),
			ContentType: contentType,
			Filename:    filenameFor(res, resourceId),
		}, nil
	}

	doc, err := parseDoc(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return ResourcePayload{}, err
	}
	fileUrl := doc.Find("a.resourcelinkdetails").First().AttrOr("href", "")
	if fileUrl == "" {
		span.SetStatus(codes.Error, ResourceNotFound.Error())
		return ResourcePayload{}, ResourceNotFound
	}

	fileRes, err := c.Core.Http.R().
		SetContext(ctx).
		Get(fileUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch resource file")
		return ResourcePayload{}, fmt.Errorf("fetch resource file: %w", err)
	}
	if err := core.StatusErr(fileRes); err != nil {
		span.SetStatus(codes.Error, "resource file returned an error status")
		return ResourcePayload{}, fmt.Errorf("fetch resource file: %w", err)
	}

	contentType = fileRes.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return ResourcePayload{
		Content:     fileRes.Body(),
		ContentType: contentType,
		Filename:    filenameFor(fileRes, resourceId),
	}, nil
}

func filenameFor(res *resty.Response, resourceId string) string {
	if disposition := res.Header().Get("Content-Disposition"); disposition != "" {
		_, params, err := mime.ParseMediaType(disposition)
		if err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}

	if res.RawResponse != nil && res.RawResponse.Request != nil {
		base := path.Base(res.RawResponse.Request.URL.Path)
		if strings.Contains(base, ".") {
			return base
		}
	}

	return fmt.Sprintf("resource_%s", resourceId)
}
