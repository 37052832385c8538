package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/services/content"
	"github.com/trezcool/masomo-scorm/storage/database/inmem"
	"github.com/trezcool/masomo-scorm/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}

	learner = scorm.Learner{ID: "learner-1", Name: "Doe, Jane"}
	other   = scorm.Learner{ID: "learner-2", Name: "Roe, Richard"}
)

type fixture struct {
	conf      *core.Config
	app       Server
	logger    *testutil.Logger
	committer *scorm.CommitterMock
	pkg       scorm.ContentPackage
	units     []scorm.ContentUnit
	empty     scorm.ContentPackage
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{logger: new(testutil.Logger)}

	f.conf = new(core.Config)
	f.conf.AppName = "Masomo"
	f.conf.TestMode = true
	f.conf.SecretKey = "test-secret"
	f.conf.Server.JWTExpirationDelta = time.Hour
	f.conf.Content.Route = "scorm-content"
	f.conf.Content.Root = t.TempDir()

	// set up DB & repos
	db := inmemdb.Open()
	pkgRepo := inmemdb.NewPackageRepository(db)
	states := inmemdb.NewStateStore(db)
	f.pkg, f.units = testutil.CreatePackage(t, pkgRepo, "course-1", "index.html", "m2/start.html")
	f.empty, _ = testutil.CreatePackage(t, pkgRepo, "course-empty")

	writeContent(t, f.conf.Content.Root, "course-1/index.html", "<html><script>var API = null;</script></html>")
	writeContent(t, f.conf.Content.Root, "course-1/m2/start.html", "<html>module 2</html>")
	writeContent(t, f.conf.Content.Root, "course-1/img/logo.png", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	writeContent(t, f.conf.Content.Root, "outside.txt", "nope")

	// set up services
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	scorm.InitValidators(validate, translator)

	f.committer = scorm.NewCommitterMock(states, f.logger)
	players := scorm.NewService(scorm.NewResolver(pkgRepo, f.conf.Content.Route), states, f.committer, f.logger, scorm.PlayerOptions{
		ContentRoute: f.conf.Content.Route,
		HostOrigin:   "https://lms.test",
	})
	t.Cleanup(players.Close)

	// set up server
	f.app = NewServer(&ServerDeps{
		Conf:           f.conf,
		Logger:         f.logger,
		Players:        players,
		Packages:       pkgRepo,
		Content:        contentsvc.NewLocalStore(f.conf.Content.Root),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return f
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func writeContent(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("writeContent() failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("writeContent() failed: %v", err)
	}
}

// serve runs a request against the app and returns the recorder.
func (f *fixture) serve(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

// load opens course-1 for learner and returns the player id.
func (f *fixture) load(t *testing.T, token string) string {
	t.Helper()
	rec := f.serve(http.MethodPost, "/v1/courses/course-1/player", token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("load() failed: code = %v; body %s", rec.Code, rec.Body.String())
	}
	var view scorm.PlayerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("load() failed: %v", err)
	}
	return view.ID
}

type httpErr struct {
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

func getToken(t *testing.T, conf *core.Config, l scorm.Learner) string {
	token, err := GenerateToken(conf, GetLearnerClaims(conf, l))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
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
	assert.True(t, ok, "failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
}
