package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"moodle-bridge/lib/restyutil"
	"moodle-bridge/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("moodle-bridge.scrapers.moodle.core")

var LoginFailed = fmt.Errorf("Failed to login to your account.")

// LoginAmbiguous means the login response matched neither the known
// failure phrase nor the authenticated-only UI marker. Callers treat it
// as a failure but it is kept distinct for diagnostics, since it usually
// means the deployment shipped new markup.
var LoginAmbiguous = fmt.Errorf("could not determine whether the login succeeded")

// phrases used by the elearning.univ-*.dz deployments
const loginFailedPhrase = "La connexion a échoué"
const loginSuccessPhrase = "Utilisateurs en ligne"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// StatusError is a non-2xx response from the target site.
type StatusError struct {
	Code int
	Url  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch failed: status %d from %s", e.Code, e.Url)
}

// StatusErr converts a non-2xx response into a *StatusError, nil
// otherwise. Callers match it with errors.As to tell transient fetch
// failures apart from scraping failures.
func StatusErr(res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	return &StatusError{Code: res.StatusCode(), Url: res.Request.URL}
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	BaseUrl string
	// Timeout bounds every outbound call, defaults to 10 seconds.
	// Exceeding it surfaces as a fetch failure, never a hang.
	Timeout time.Duration
	// Debug, when non-nil, receives a dump of every request/response pair.
	Debug restyutil.InstrumentOutput
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	// some deployments reject requests without a browser user agent
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 10
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "moodle-bridge.scrapers.moodle.http")
	restyutil.InstrumentClient(client, opts.Debug)

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}
	return c, nil
}

// Login drives the username/password handshake against the html login
// form. A fresh anti-forgery token is fetched per attempt since the site
// hands out single-use tokens. There is no retry, a failed login is
// reported once and the caller decides what to do.
func (c *Client) Login(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get("/login/index.php")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("fetch login page: %w", err)
	}
	if err := StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "login page returned an error status")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	logintoken, err := LoginToken(doc)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find login token")
		return err
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"logintoken": logintoken,
			"username":   username,
			"password":   password,
		}).
		Post("/login/index.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return fmt.Errorf("submit login form: %w", err)
	}
	if err := StatusErr(res); err != nil {
		span.SetStatus(codes.Error, "login submission returned an error status")
		return err
	}

	err = classifyLoginResponse(res.Body())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func classifyLoginResponse(body []byte) error {
	if bytes.Contains(body, []byte(loginFailedPhrase)) {
		return LoginFailed
	}
	if bytes.Contains(body, []byte(loginSuccessPhrase)) {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return LoginAmbiguous
	}
	// the user menu only renders the .login anchor for anonymous visitors
	usermenu := doc.Find("div.usermenu")
	if usermenu.Length() > 0 && usermenu.Find("span.login").Length() == 0 {
		return nil
	}
	return LoginAmbiguous
}
