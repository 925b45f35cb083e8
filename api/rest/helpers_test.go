package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/api/rest"
	"github.com/kasuganosora/waifuarena/audit"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/config"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/ledger"
	mw "github.com/kasuganosora/waifuarena/middleware"
	"github.com/kasuganosora/waifuarena/scheduler"
	"github.com/kasuganosora/waifuarena/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const adminKey = "operator-key"

var (
	admin = identity.MustParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	alice = identity.MustParseAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	bob   = identity.MustParseAddress("0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB")
)

var testSec = config.SecurityConfig{
	JWTSecret: "test-secret",
	JWTTTLH:   time.Hour,
	NonceTTL:  time.Minute,
}

type env struct {
	r      *gin.Engine
	db     *gorm.DB
	cache  cache.Cache
	ledger *ledger.Service
	audit  *audit.Service
	sched  *scheduler.Scheduler
	nonce  atomic.Int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithKey(t, adminKey)
}

func newEnvWithKey(t *testing.T, key string) *env {
	t.Helper()
	return newEnvWithLimit(t, key, nil)
}

func newEnvWithLimit(t *testing.T, key string, limit gin.HandlerFunc) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	l, err := ledger.New(db, admin, ps, nil, testutil.Logger())
	require.NoError(t, err)
	auditSvc := audit.New(db, testutil.Logger())
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(testutil.Logger())
	t.Cleanup(sched.Stop)

	r := gin.New()
	r.Use(mw.TraceID())
	rest.Register(r, rest.Deps{
		Ledger:    l,
		Audit:     auditSvc,
		Cache:     c,
		Security:  testSec,
		AdminKey:  key,
		Scheduler: sched,
		Logger:    testutil.Logger(),
		RateLimit: limit,
	})
	return &env{r: r, db: db, cache: c, ledger: l, audit: auditSvc, sched: sched}
}

// login stores a session for addr and returns its token.
func (e *env) login(t *testing.T, addr identity.Address) string {
	t.Helper()
	token, err := mw.GenerateToken(addr, testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, e.cache.Set(context.Background(), mw.SessionKey(token), addr.Hex(), time.Hour))
	return token
}

type reqOpt func(*http.Request)

func withToken(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withNonce(n string) reqOpt {
	return func(r *http.Request) { r.Header.Set(mw.NonceHeader, n) }
}

func withAdminKey(k string) reqOpt {
	return func(r *http.Request) { r.Header.Set("X-Admin-Key", k) }
}

func (e *env) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// post sends an authenticated mutating request with a fresh nonce.
func (e *env) post(path, token, body string) *httptest.ResponseRecorder {
	n := strconv.FormatInt(e.nonce.Add(1), 10)
	return e.do(http.MethodPost, path, body, withToken(token), withNonce(n))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
