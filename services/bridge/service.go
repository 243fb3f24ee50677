// Package bridge is the facade over the moodle scrapers. It owns login,
// the token to session mapping and per-institution configuration, and
// exposes one method per scraping operation.
package bridge

import (
	"context"
	"fmt"

	"moodle-bridge/lib/scrapers/moodle/browse"
	"moodle-bridge/lib/scrapers/moodle/core"
	"moodle-bridge/lib/scrapers/moodle/notify"
	"moodle-bridge/services/notifications"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("moodle-bridge.services.bridge")

// institutions follow a common url scheme, only the outliers need an
// explicit entry in the config
const defaultBaseUrlFormat = "https://elearning.univ-%s.dz"

type InstitutionConfig struct {
	BaseUrl string `json:"base_url"`
	// LegacyNotificationArgs switches the notification fetcher to the
	// argument names expected by older moodle versions.
	LegacyNotificationArgs bool `json:"legacy_notification_args"`
}

type Config struct {
	// Institutions maps an institution key to its overrides. Unknown
	// keys fall back to the default url scheme.
	Institutions map[string]InstitutionConfig `json:"institutions"`
	// MaxSessions bounds the token store, the oldest session is evicted
	// past it. Defaults to 4096.
	MaxSessions int `json:"max_sessions"`
}

func (c Config) institution(name string) InstitutionConfig {
	if inst, ok := c.Institutions[name]; ok {
		if inst.BaseUrl == "" {
			inst.BaseUrl = fmt.Sprintf(defaultBaseUrlFormat, name)
		}
		return inst
	}
	return InstitutionConfig{
		BaseUrl: fmt.Sprintf(defaultBaseUrlFormat, name),
	}
}

type Service struct {
	config        Config
	tokens        *TokenStore
	notifications notifications.Service
}

func NewService(config Config, notificationService notifications.Service) Service {
	maxSessions := config.MaxSessions
	if maxSessions == 0 {
		maxSessions = 4096
	}
	return Service{
		config:        config,
		tokens:        NewTokenStore(maxSessions, SessionTtl),
		notifications: notificationService,
	}
}

// Authenticate logs into the institution's moodle and returns a bearer
// token for the session. The credentials are used once and dropped, only
// the session cookies are kept.
func (s Service) Authenticate(ctx context.Context, institution, username, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	client, err := s.newClient(ctx, institution)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create client")
		return "", err
	}

	err = client.Login(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return "", err
	}

	token, err := s.tokens.Issue(client.ExportSession(institution))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to issue token")
		return "", err
	}
	return token, nil
}

func (s Service) newClient(ctx context.Context, institution string) (*core.Client, error) {
	return core.NewClient(ctx, core.ClientOptions{
		BaseUrl: s.config.institution(institution).BaseUrl,
	})
}

// restore exchanges a bearer token for a client carrying that session's
// cookies.
func (s Service) restore(ctx context.Context, token string) (*core.Client, core.Session, error) {
	session, err := s.tokens.Resolve(token)
	if err != nil {
		return nil, core.Session{}, err
	}
	client, err := s.newClient(ctx, session.Institution)
	if err != nil {
		return nil, core.Session{}, err
	}
	client.RestoreSession(session)
	return client, session, nil
}

func (s Service) Categories(ctx context.Context, token string) ([]browse.Category, error) {
	ctx, span := tracer.Start(ctx, "Categories")
	defer span.End()

	client, _, err := s.restore(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return browse.NewClient(client).Categories(ctx)
}

func (s Service) Courses(ctx context.Context, token, categoryId string) ([]browse.Course, error) {
	ctx, span := tracer.Start(ctx, "Courses")
	defer span.End()

	client, _, err := s.restore(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return browse.NewClient(client).Courses(ctx, categoryId)
}

func (s Service) Chapters(ctx context.Context, token, courseId string) (browse.CourseContent, error) {
	ctx, span := tracer.Start(ctx, "Chapters")
	defer span.End()

	client, _, err := s.restore(ctx, token)
	if err != nil {
		span.RecordError(err)
		return browse.CourseContent{}, err
	}
	return browse.NewClient(client).Chapters(ctx, courseId)
}

func (s Service) Resource(ctx context.Context, token, resourceId string) (browse.ResourcePayload, error) {
	ctx, span := tracer.Start(ctx, "Resource")
	defer span.End()

	client, _, err := s.restore(ctx, token)
	if err != nil {
		span.RecordError(err)
		return browse.ResourcePayload{}, err
	}
	return browse.NewClient(client).Resource(ctx, resourceId)
}

// Notifications fetches a page of the session's notifications and feeds
// it through the ingestion pipeline before returning it.
func (s Service) Notifications(ctx context.Context, token string, limit, offset int) ([]notify.Notification, error) {
	ctx, span := tracer.Start(ctx, "Notifications")
	defer span.End()

	client, session, err := s.restore(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	legacy := s.config.institution(session.Institution).LegacyNotificationArgs
	fetched, err := notify.NewClient(client, legacy).Notifications(ctx, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch notifications")
		return nil, err
	}

	_, err = s.notifications.Ingest(ctx, fetched)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to ingest notifications")
		return nil, err
	}
	return fetched, nil
}
