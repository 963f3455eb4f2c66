package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/calendar"
	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
	"github.com/trezcool/planner/core/user"
	"github.com/trezcool/planner/services/metrics"
	"github.com/trezcool/planner/storage/database/inmem"
	"github.com/trezcool/planner/storage/files"
	"github.com/trezcool/planner/tests"
)

const (
	testClassID int64 = 7
	testPwd           = "Pa$$w0rd!"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type codeErr struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testApp struct {
	srv     *Server
	usrRepo user.Repository
	notifs  *notification.Service

	teacher  user.User
	outsider user.User
	pedago   user.User
	general  user.User
	naughty  user.User
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	// 2025-05-14 is a Wednesday of 2025-W20
	nowFunc = func() time.Time { return time.Date(2025, time.May, 14, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = func() time.Time { return time.Now().UTC() } })

	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	planning.InitValidators(validate, translator)

	store, err := files.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	usrSvc := user.NewService(usrRepo, validate)
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), nil, nil)
	mtr := metricsvc.New()
	planningSvc := planning.NewService(planning.Deps{
		Repo:     inmemdb.NewPlanningRepository(db),
		Files:    store,
		Users:    usrSvc,
		Notifier: notifSvc,
		Logger:   core.NopLogger{},
		Metrics:  mtr,
		Validate: validate,
	})

	app := &testApp{
		srv: NewServer(ServerDeps{
			Conf:            conf,
			Logger:          core.NopLogger{},
			UserSvc:         usrSvc,
			PlanningSvc:     planningSvc,
			NotificationSvc: notifSvc,
			Metrics:         mtr.Handler(),
			Validate:        validate,
			Translator:      translator,
		}),
		usrRepo: usrRepo,
		notifs:  notifSvc,
	}
	t.Cleanup(func() { _ = app.srv.Close() })

	app.teacher = testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", testPwd, user.RoleTeacher, []int64{testClassID}, true)
	app.outsider = testutil.CreateUser(t, usrRepo, "Outsider", "outsider", "outsider@test.cd", testPwd, user.RoleTeacher, []int64{testClassID + 1}, true)
	app.pedago = testutil.CreateUser(t, usrRepo, "Pedago", "pedago", "pedago@test.cd", testPwd, user.RolePedagogicalAdmin, nil, true)
	app.general = testutil.CreateUser(t, usrRepo, "General", "general", "general@test.cd", testPwd, user.RoleGeneralAdmin, nil, true)
	app.naughty = testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.cd", testPwd, user.RoleTeacher, []int64{testClassID}, false)
	return app
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.srv.IssueToken(usr)
	require.NoError(t, err)
	return token
}

func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.srv.ServeHTTP(rec, req)
	return rec
}

// plan creates (or finds) the class plan of 2025-W<isoWeek> as the class teacher and returns its ID.
func (app *testApp) plan(t *testing.T, isoWeek int) string {
	t.Helper()
	body := marshallObj(t, planning.Key{ClassID: testClassID, ISOYear: 2025, ISOWeek: isoWeek})
	rec := app.do(newAuthRequest(http.MethodPost, "/v1/plans", app.token(t, app.teacher), body))
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, rec.Body.String())
	var res FindOrCreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.PlanningID
}

func (app *testApp) runAll(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newUploadRequest(t *testing.T, path, token, fname string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(uploadField, fname)
	require.NoError(t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func TestServer_home(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(newRequest(http.MethodGet, "/"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Welcome to the Planner API!", rec.Body.String())
}

func TestServer_metrics(t *testing.T) {
	app := newTestApp(t)
	app.plan(t, 20)

	rec := app.do(newRequest(http.MethodGet, "/metrics"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "planner_plans_created_total 1"), rec.Body.String())
}

func Test_weekApi_current(t *testing.T) {
	app := newTestApp(t)
	w, err := calendar.Resolve(2025, 20)
	require.NoError(t, err)

	app.runAll(t, []httpTest{
		{name: "Auth required", path: "/v1/weeks/current", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Current week", path: "/v1/weeks/current", token: app.token(t, app.teacher),
			wantData: marshallObj(t, newWeek(w, time.May, nil)),
		},
	})
}
