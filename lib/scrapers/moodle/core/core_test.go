package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"moodle-bridge/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const testLoginToken = "a1b2c3d4"

// newLoginServer serves the login handshake: a GET hands out the form
// with a fresh logintoken, a POST with the right credentials sets the
// session cookie and renders the authenticated dashboard.
func newLoginServer(t testing.TB, password string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/index.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><body><form action="/login/index.php" method="post">
				<input type="hidden" name="logintoken" value="`+testLoginToken+`">
			</form></body></html>`)
			return
		}

		require.NoError(t, r.ParseForm())
		if r.FormValue("logintoken") != testLoginToken {
			fmt.Fprint(w, `<html><body>something unexpected</body></html>`)
			return
		}
		if r.FormValue("password") != password {
			fmt.Fprint(w, `<html><body>La connexion a échoué, veuillez réessayer</body></html>`)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "MoodleSession", Value: "sess-cookie-value", Path: "/"})
		fmt.Fprint(w, `<html><body>
			<div class="usermenu"><span class="userbutton">Amine</span></div>
			<div class="block">Utilisateurs en ligne</div>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t testing.TB, baseUrl string) *Client {
	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: baseUrl})
	require.NoError(t, err)
	return client
}

func TestLoginSuccess(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/core")
	defer cleanup()

	server := newLoginServer(t, "hunter2")
	client := newTestClient(t, server.URL)

	err := client.Login(context.Background(), "amine", "hunter2")
	require.NoError(t, err)

	session := client.ExportSession("bba")
	require.Equal(t, "bba", session.Institution)
	require.Equal(t, "sess-cookie-value", session.Cookies["MoodleSession"])
}

func TestLoginBadCredentials(t *testing.T) {
	server := newLoginServer(t, "hunter2")
	client := newTestClient(t, server.URL)

	err := client.Login(context.Background(), "amine", "wrong")
	require.ErrorIs(t, err, LoginFailed)
}

func TestLoginAmbiguousResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/index.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<form><input type="hidden" name="logintoken" value="`+testLoginToken+`"></form>`)
			return
		}
		// neither the failure phrase nor any authenticated marker
		fmt.Fprint(w, `<html><body><p>Maintenance in progress</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Login(context.Background(), "amine", "hunter2")
	require.ErrorIs(t, err, LoginAmbiguous)
}

func TestLoginTokenMissingFromForm(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/index.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form></form></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Login(context.Background(), "amine", "hunter2")
	require.ErrorIs(t, err, TokenNotFound)
}

func TestLoginServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Login(context.Background(), "amine", "hunter2")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestSessionRoundTrip(t *testing.T) {
	server := newLoginServer(t, "hunter2")

	first := newTestClient(t, server.URL)
	err := first.Login(context.Background(), "amine", "hunter2")
	require.NoError(t, err)
	session := first.ExportSession("bba")

	second := newTestClient(t, server.URL)
	second.RestoreSession(session)
	require.Equal(t, session.Cookies, second.ExportSession("bba").Cookies)
}
