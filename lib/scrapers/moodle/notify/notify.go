// Package notify fetches popup notifications through the moodle ajax
// service. The service needs a session key scraped out of an
// authenticated page, so a [core.Client] that already logged in is
// required.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"moodle-bridge/lib/scrapers/moodle/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("moodle-bridge.scrapers.moodle.notify")

const notificationsMethod = "message_popup_get_popup_notifications"

// RemoteApiError is an error the ajax service itself reported, as
// opposed to a transport or decoding failure.
type RemoteApiError struct {
	Message string
}

func (e *RemoteApiError) Error() string {
	return fmt.Sprintf("moodle ajax service: %s", e.Message)
}

type Notification struct {
	Id              core.LooseString `json:"id"`
	Subject         string           `json:"subject"`
	SmallMessage    string           `json:"smallmessage"`
	FullMessage     string           `json:"fullmessage"`
	FullMessageHTML string           `json:"fullmessagehtml"`
	TimeCreated     core.LooseString `json:"timecreated"`
}

type Client struct {
	Core *core.Client
	// LegacyArgs selects the older argument names
	// (limitnum/newestfirst) still expected by institutions running
	// moodle 3.x.
	LegacyArgs bool
}

func NewClient(coreClient *core.Client, legacyArgs bool) Client {
	return Client{Core: coreClient, LegacyArgs: legacyArgs}
}

type ajaxRequest struct {
	Index      int            `json:"index"`
	MethodName string         `json:"methodname"`
	Args       map[string]any `json:"args"`
}

type ajaxResponse struct {
	Error     bool `json:"error"`
	Exception *struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorcode"`
	} `json:"exception"`
	Data json.RawMessage `json:"data"`
}

// Notifications fetches a page of popup notifications for the logged in
// user, newest first.
func (c Client) Notifications(ctx context.Context, limit, offset int) ([]Notification, error) {
	ctx, span := tracer.Start(ctx, "client:Notifications")
	defer span.End()

	res, err := c.Core.Http.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch site root")
		return nil, fmt.Errorf("fetch site root: %w", err)
	}
	if err := core.StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "site root returned an error status")
		return nil, fmt.Errorf("fetch site root: %w", err)
	}

	cfg, err := core.ExtractConfig(res.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract moodle config")
		return nil, err
	}

	batch := []ajaxRequest{{
		Index:      0,
		MethodName: notificationsMethod,
		Args:       c.notificationArgs(cfg, limit, offset),
	}}

	var responses []ajaxResponse
	ajaxRes, err := c.Core.Http.R().
		SetContext(ctx).
		SetQueryParam("sesskey", cfg.Sesskey).
		SetQueryParam("info", notificationsMethod).
		SetHeader("Content-Type", "application/json").
		SetBody(batch).
		SetResult(&responses).
		Post("/lib/ajax/service.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ajax call failed")
		return nil, fmt.Errorf("call ajax service: %w", err)
	}
	if err := core.StatusErr(ajaxRes); err != nil {
		span.SetStatus(codes.Error, "ajax service returned an error status")
		return nil, fmt.Errorf("call ajax service: %w", err)
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("ajax service returned an empty batch response")
	}

	first := responses[0]
	if first.Error || first.Exception != nil {
		message := "unspecified error"
		if first.Exception != nil && first.Exception.Message != "" {
			message = first.Exception.Message
		}
		err := &RemoteApiError{Message: message}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	notifications, err := decodeNotifications(ctx, first.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode notifications")
		return nil, err
	}
	return notifications, nil
}

func (c Client) notificationArgs(cfg core.Config, limit, offset int) map[string]any {
	if c.LegacyArgs {
		return map[string]any{
			"useridto":    string(cfg.UserId),
			"limitnum":    limit,
			"offset":      offset,
			"newestfirst": 1,
		}
	}
	return map[string]any{
		"useridto": string(cfg.UserId),
		"limit":    limit,
		"offset":   offset,
	}
}

// decodeNotifications accepts both payload shapes the ajax method is
// known to produce, a bare list and a wrapper object holding one. The
// list is decoded element by element, a malformed element is logged and
// skipped, it never fails the rest of the batch.
func decodeNotifications(ctx context.Context, data json.RawMessage) ([]Notification, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		var wrapped struct {
			Notifications []json.RawMessage `json:"notifications"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode notifications payload: %w", err)
		}
		elements = wrapped.Notifications
	}

	var notifications []Notification
	for _, element := range elements {
		var notification Notification
		if err := json.Unmarshal(element, &notification); err != nil {
			slog.WarnContext(ctx, "skipping malformed notification", "err", err)
			continue
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}
