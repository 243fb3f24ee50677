package core

import (
	"net/http"
)

// Session is the serializable form of an authenticated cookie jar plus
// the institution it belongs to. It is owned exclusively by the caller
// after export, the client keeps no copy.
type Session struct {
	Institution string            `json:"institution"`
	Cookies     map[string]string `json:"cookies"`
}

func (c *Client) ExportSession(institution string) Session {
	cookies := map[string]string{}
	for _, cookie := range c.Http.GetClient().Jar.Cookies(c.BaseUrl) {
		cookies[cookie.Name] = cookie.Value
	}
	return Session{
		Institution: institution,
		Cookies:     cookies,
	}
}

func (c *Client) RestoreSession(session Session) {
	var cookies []*http.Cookie
	for name, value := range session.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:  name,
			Value: value,
			Path:  "/",
		})
	}
	c.Http.GetClient().Jar.SetCookies(c.BaseUrl, cookies)
}
