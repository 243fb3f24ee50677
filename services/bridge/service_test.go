package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"moodle-bridge/lib/scrapers/moodle/core"
	"moodle-bridge/lib/testutil"
	"moodle-bridge/services/notifications"
	notifdb "moodle-bridge/services/notifications/db"

	"github.com/stretchr/testify/require"
)

func TestInstitutionDefaults(t *testing.T) {
	config := Config{
		Institutions: map[string]InstitutionConfig{
			"usthb":  {BaseUrl: "https://elearning.usthb.dz"},
			"legacy": {LegacyNotificationArgs: true},
		},
	}

	require.Equal(t, "https://elearning.usthb.dz", config.institution("usthb").BaseUrl)

	// unknown institutions follow the shared url scheme
	unknown := config.institution("bejaia")
	require.Equal(t, "https://elearning.univ-bejaia.dz", unknown.BaseUrl)
	require.False(t, unknown.LegacyNotificationArgs)

	// an entry can override one field and inherit the url
	legacy := config.institution("legacy")
	require.Equal(t, "https://elearning.univ-legacy.dz", legacy.BaseUrl)
	require.True(t, legacy.LegacyNotificationArgs)
}

const testPassword = "hunter2"

// newMoodleServer fakes enough of a moodle install for a login followed
// by an authenticated category listing.
func newMoodleServer(t testing.TB) *httptest.Server {
	const loginToken = "f00ba4"

	authenticated := func(r *http.Request) bool {
		cookie, err := r.Cookie("MoodleSession")
		return err == nil && cookie.Value == "session-1"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/index.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprintf(w, `<html><body><form>
				<input type="hidden" name="logintoken" value="%s">
			</form></body></html>`, loginToken)
			return
		}
		if r.FormValue("logintoken") != loginToken || r.FormValue("password") != testPassword {
			fmt.Fprint(w, `<html><body><p>La connexion a échoué</p></body></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "MoodleSession", Value: "session-1", Path: "/"})
		fmt.Fprint(w, `<html><body><div class="usermenu"><span class="userbutton">A. Student</span></div>
			<p>Utilisateurs en ligne</p></body></html>`)
	})
	mux.HandleFunc("/course/index.php", func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("categoryid") == "5" {
			fmt.Fprint(w, `<html><body>
				<div class="coursebox"><div class="coursename"><a href="/course/index.php?categoryid=51">Licence Info</a></div></div>
			</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><select name="jump">
			<option value="/course/index.php?categoryid=5">Informatique</option>
		</select></body></html>`)
	})
	mux.HandleFunc("/lib/ajax/service.php", func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) || r.URL.Query().Get("sesskey") != "k3y123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"error":false,"data":{"notifications":[
			{"id":"7","subject":"Nouveau devoir","fullmessage":"Le devoir 3 est disponible.","timecreated":"1700000000"}
		]}}]`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<html><head><script>
			M.cfg = {"sesskey":"k3y123","userId":42};
		</script></head><body></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setup(t testing.TB) (Service, *sql.DB) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/bridge",
		DbSchema: notifdb.Schema,
	})
	t.Cleanup(cleanup)

	server := newMoodleServer(t)
	config := Config{
		Institutions: map[string]InstitutionConfig{
			"test": {BaseUrl: server.URL},
		},
	}
	queue := notifications.NewChannelQueue(16)
	return NewService(config, notifications.NewService(res.DB, queue)), res.DB
}

func TestAuthenticateAndBrowse(t *testing.T) {
	service, _ := setup(t)
	ctx := context.Background()

	token, err := service.Authenticate(ctx, "test", "student", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// the token carries the session, a fresh client per call still
	// reaches authenticated pages
	categories, err := service.Categories(ctx, token)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, "Informatique", categories[0].Name)
	require.Len(t, categories[0].Subcategories, 1)
}

func TestAuthenticateBadCredentials(t *testing.T) {
	service, _ := setup(t)

	_, err := service.Authenticate(context.Background(), "test", "student", "wrong")
	require.ErrorIs(t, err, core.LoginFailed)
}

func TestBrowseWithoutSession(t *testing.T) {
	service, _ := setup(t)

	_, err := service.Categories(context.Background(), "no-such-token")
	require.ErrorIs(t, err, SessionExpired)
}

func TestNotificationsFetchAndIngest(t *testing.T) {
	service, database := setup(t)
	ctx := context.Background()

	token, err := service.Authenticate(ctx, "test", "student", testPassword)
	require.NoError(t, err)

	fetched, err := service.Notifications(ctx, token, 50, 0)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	require.Equal(t, "Nouveau devoir", fetched[0].Subject)

	stored, err := notifdb.New(database).GetNotification(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "Le devoir 3 est disponible.", stored.Message)

	// a second fetch returns the notification again but does not
	// duplicate the record
	fetched, err = service.Notifications(ctx, token, 50, 0)
	require.NoError(t, err)
	require.Len(t, fetched, 1)

	all, err := notifdb.New(database).ListUnsentNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
