package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/auth"
	jwtpkg "github.com/ezac101/chainmail/internal/auth/jwt"
	"github.com/ezac101/chainmail/internal/config"
	"github.com/ezac101/chainmail/internal/content"
	"github.com/ezac101/chainmail/internal/content/filesystem"
	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/monitoring"
	"github.com/ezac101/chainmail/internal/service"
	"github.com/ezac101/chainmail/internal/storage/memory"
	"github.com/ezac101/chainmail/internal/websocket"
)

const (
	testOwner     = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testRelayAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testAlice     = "0x1111111111111111111111111111111111111111"
	testBob       = "0x2222222222222222222222222222222222222222"
	testZero      = "0x0000000000000000000000000000000000000000"
)

const testArmoredKey = `-----BEGIN PGP PUBLIC KEY BLOCK-----

mQENBGZxAAABCADTestKeyMaterial
=abcd
-----END PGP PUBLIC KEY BLOCK-----`

// Prometheus 指标注册在全局 registry，整个测试进程只创建一次
var testMetrics = monitoring.NewMetrics()

type testEnv struct {
	router *gin.Engine
	ledger *service.LedgerService
	relay  *service.RelayService
	auth   *auth.Service
	jwt    *jwtpkg.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := zap.NewNop()

	ledger, err := service.NewLedgerService(store,
		domain.MustParseAddress(testOwner), domain.MustParseAddress(testRelayAddr))
	require.NoError(t, err)

	relayCfg := config.RelayConfig{
		MinBalance:     1000,
		InitialBalance: 10000000,
		BaseGas:        21000,
		GasPerByte:     68,
	}
	relay := service.NewRelayService(ledger, store, relayCfg, log)
	require.NoError(t, relay.Bootstrap())

	contentStore, err := filesystem.NewStore(t.TempDir(), 1024*1024)
	require.NoError(t, err)
	contents := service.NewContentService(contentStore)

	admin := service.NewAdminService(ledger, relay, store, "memory", "filesystem")
	authService := auth.NewService(store)
	jwtManager := jwtpkg.NewManager("test-secret-at-least-32-characters-long", "chainmail-test",
		15*time.Minute, time.Hour)

	cfg := &config.Config{
		Relay: relayCfg,
		CORS:  config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		LedgerService:  ledger,
		RelayService:   relay,
		ContentService: contents,
		AdminService:   admin,
		AuthService:    authService,
		JWTManager:     jwtManager,
		WebSocketHub:   websocket.NewHub([]string{"*"}, log),
		Store:          store,
		Metrics:        testMetrics,
		AlertManager:   monitoring.NewAlertManager(log),
		Logger:         log,
	})

	return &testEnv{
		router: router,
		ledger: ledger,
		relay:  relay,
		auth:   authService,
		jwt:    jwtManager,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "expected object data, got %T", resp.Data)
	return data
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRelaySendEmail(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/v1/relay/send", gin.H{
		"sender":         testAlice,
		"recipient":      testBob,
		"contentPointer": "content-hash-abc",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)

	data := dataMap(t, w)
	assert.Equal(t, float64(1), data["id"])
	assert.NotEmpty(t, data["txHash"])
	assert.NotZero(t, data["gasUsed"])
}

func TestRelaySendEmail_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{"Missing sender", gin.H{"recipient": testBob, "contentPointer": "ptr"}},
		{"Missing pointer", gin.H{"sender": testAlice, "recipient": testBob}},
		{"Malformed sender", gin.H{"sender": "0x12", "recipient": testBob, "contentPointer": "ptr"}},
		{"Malformed recipient", gin.H{"sender": testAlice, "recipient": "xyz", "contentPointer": "ptr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/v1/relay/send", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRelaySendEmail_ZeroAddressRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/v1/relay/send", gin.H{
		"sender":         testZero,
		"recipient":      testBob,
		"contentPointer": "ptr",
	}, nil)

	// 账本拒绝原因原文返回
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "zero address not allowed", resp.Msg)
}

func TestRelaySendEmail_BalanceTooLow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := zap.NewNop()
	ledger, err := service.NewLedgerService(store,
		domain.MustParseAddress(testOwner), domain.MustParseAddress(testRelayAddr))
	require.NoError(t, err)

	// 初始余额不足以覆盖一笔提交
	relay := service.NewRelayService(ledger, store, config.RelayConfig{
		MinBalance:     0,
		InitialBalance: 100,
		BaseGas:        21000,
		GasPerByte:     68,
	}, log)
	require.NoError(t, relay.Bootstrap())

	contentStore, err := filesystem.NewStore(t.TempDir(), 1024)
	require.NoError(t, err)

	router := NewRouter(RouterDependencies{
		Config:         &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		LedgerService:  ledger,
		RelayService:   relay,
		ContentService: service.NewContentService(contentStore),
		AdminService:   service.NewAdminService(ledger, relay, store, "memory", "filesystem"),
		AuthService:    auth.NewService(store),
		JWTManager:     jwtpkg.NewManager("test-secret-at-least-32-characters-long", "t", time.Minute, time.Hour),
		WebSocketHub:   websocket.NewHub([]string{"*"}, log),
		Store:          store,
		Metrics:        testMetrics,
		AlertManager:   monitoring.NewAlertManager(log),
		Logger:         log,
	})

	body, _ := json.Marshal(gin.H{
		"sender":         testAlice,
		"recipient":      testBob,
		"contentPointer": "ptr",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/relay/send", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "relay balance below configured minimum", resp.Msg)
}

func TestRelayRegisterKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/v1/relay/keys", gin.H{
		"account":   testAlice,
		"publicKey": testArmoredKey,
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	data := dataMap(t, w)
	assert.NotEmpty(t, data["txHash"])

	// 公钥已可查询
	w = env.request(t, http.MethodGet, "/v1/keys/"+testAlice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testArmoredKey, dataMap(t, w)["publicKey"])
}

func TestRelayRegisterKey_Malformed(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/v1/relay/keys", gin.H{
		"account":   testAlice,
		"publicKey": "not-an-armored-key",
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "malformed armored public key", resp.Msg)
}

func TestRelayBalance(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/v1/relay/balance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	assert.Equal(t, float64(10000000), data["balance"])
	assert.Equal(t, float64(0), data["gasSpent"])
	assert.Equal(t, float64(1000), data["minBalance"])
}

func TestGetEmail(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.ledger.LogSend(
		domain.MustParseAddress(testAlice), domain.MustParseAddress(testBob), "ptr-1")
	require.NoError(t, err)

	w := env.request(t, http.MethodGet, fmt.Sprintf("/v1/emails/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, testAlice, data["sender"])
	assert.Equal(t, testBob, data["recipient"])
	assert.Equal(t, "ptr-1", data["contentPointer"])
	assert.Equal(t, true, data["immutable"])
}

func TestGetEmail_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	// 未分配的编号按账本拒绝原因返回 404
	w := env.request(t, http.MethodGet, "/v1/emails/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "invalid email ID", resp.Msg)

	// 非数字编号是请求格式错误
	w = env.request(t, http.MethodGet, "/v1/emails/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEmailCount(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/v1/emails/count", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), dataMap(t, w)["total"])

	_, err := env.ledger.LogSend(
		domain.MustParseAddress(testAlice), domain.MustParseAddress(testBob), "ptr")
	require.NoError(t, err)

	w = env.request(t, http.MethodGet, "/v1/emails/count", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataMap(t, w)["total"])
}

func TestInboxOutbox(t *testing.T) {
	env := newTestEnv(t)

	alice := domain.MustParseAddress(testAlice)
	bob := domain.MustParseAddress(testBob)

	_, err := env.ledger.LogSend(alice, bob, "a")
	require.NoError(t, err)
	_, err = env.ledger.LogSend(bob, alice, "b")
	require.NoError(t, err)
	_, err = env.ledger.LogSend(alice, bob, "c")
	require.NoError(t, err)

	w := env.request(t, http.MethodGet, "/v1/accounts/"+testBob+"/inbox", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{float64(1), float64(3)}, dataMap(t, w)["emails"])

	w = env.request(t, http.MethodGet, "/v1/accounts/"+testAlice+"/outbox", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{float64(1), float64(3)}, dataMap(t, w)["emails"])

	w = env.request(t, http.MethodGet, "/v1/accounts/not-an-address/inbox", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPublicKey_Unregistered(t *testing.T) {
	env := newTestEnv(t)

	// 未登记的账户返回空字符串而不是 404，语义与账本一致
	w := env.request(t, http.MethodGet, "/v1/keys/"+testBob, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	assert.Equal(t, testBob, data["account"])
	assert.Equal(t, "", data["publicKey"])
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)

	alice := domain.MustParseAddress(testAlice)
	bob := domain.MustParseAddress(testBob)

	_, err := env.ledger.LogSend(alice, bob, "a")
	require.NoError(t, err)
	require.NoError(t, env.ledger.RegisterPublicKey(alice, "key"))

	w := env.request(t, http.MethodGet, "/v1/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	events, ok := data["events"].([]interface{})
	require.True(t, ok)
	assert.Len(t, events, 2)
	assert.Equal(t, float64(2), data["latestSeq"])

	// 增量拉取
	w = env.request(t, http.MethodGet, "/v1/events?after=1&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events = dataMap(t, w)["events"].([]interface{})
	assert.Len(t, events, 1)

	// 非法 limit
	w = env.request(t, http.MethodGet, "/v1/events?limit=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.request(t, http.MethodGet, "/v1/events?limit=1001", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRoles(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/v1/roles", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	assert.Equal(t, testOwner, data["owner"])
	assert.Equal(t, testRelayAddr, data["relayAddress"])
}

func TestContentUploadDownload(t *testing.T) {
	env := newTestEnv(t)

	payload := []byte("-----BEGIN PGP MESSAGE-----\nencrypted\n-----END PGP MESSAGE-----")

	req := httptest.NewRequest(http.MethodPost, "/v1/content", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	data := dataMap(t, w)
	cid := data["contentId"].(string)
	assert.Equal(t, content.ContentID(payload), cid)
	assert.Equal(t, float64(len(payload)), data["size"])

	// 下载返回原始字节
	w = env.request(t, http.MethodGet, "/v1/content/"+cid, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, w.Body.Bytes())

	// HEAD 检查存在性
	w = env.request(t, http.MethodHead, "/v1/content/"+cid, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	missing := content.ContentID([]byte("missing"))
	w = env.request(t, http.MethodHead, "/v1/content/"+missing, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContentUpload_Empty(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/content", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentDownload_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/v1/content/not-a-cid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentDownload_NotFound(t *testing.T) {
	env := newTestEnv(t)

	missing := content.ContentID([]byte("never-stored"))
	w := env.request(t, http.MethodGet, "/v1/content/"+missing, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthLogin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Register(auth.RegisterInput{
		Username: "admin",
		Password: "password123",
		Role:     domain.RoleSuper,
	})
	require.NoError(t, err)

	w := env.request(t, http.MethodPost, "/v1/auth/login", gin.H{
		"username": "admin",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	assert.NotEmpty(t, data["accessToken"])
	assert.NotEmpty(t, data["refreshToken"])

	// 错误密码
	w = env.request(t, http.MethodPost, "/v1/auth/login", gin.H{
		"username": "admin",
		"password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRefresh(t *testing.T) {
	env := newTestEnv(t)

	pair, err := env.jwt.GenerateTokenPair("op-1", "admin", "operator")
	require.NoError(t, err)

	w := env.request(t, http.MethodPost, "/v1/auth/refresh", gin.H{
		"refreshToken": pair.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, dataMap(t, w)["accessToken"])

	w = env.request(t, http.MethodPost, "/v1/auth/refresh", gin.H{
		"refreshToken": "garbage",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func (e *testEnv) loginAs(t *testing.T, username, password string, role domain.OperatorRole) string {
	t.Helper()

	_, err := e.auth.Register(auth.RegisterInput{
		Username: username,
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)

	op, err := e.auth.Login(username, password)
	require.NoError(t, err)

	pair, err := e.jwt.GenerateTokenPair(op.ID, op.Username, string(op.Role))
	require.NoError(t, err)
	return pair.AccessToken
}

func TestAdmin_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/v1/admin/statistics", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodGet, "/v1/admin/statistics", nil, map[string]string{
		"Authorization": "Bearer garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_Statistics(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginAs(t, "viewer", "password123", domain.RoleOperator)

	_, err := env.ledger.LogSend(
		domain.MustParseAddress(testAlice), domain.MustParseAddress(testBob), "ptr")
	require.NoError(t, err)

	w := env.request(t, http.MethodGet, "/v1/admin/statistics", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, w)
	assert.Equal(t, float64(1), data["totalEmails"])
	assert.Equal(t, "memory", data["storageBackend"])
}

func TestAdmin_CreditRelay(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginAs(t, "viewer", "password123", domain.RoleOperator)

	w := env.request(t, http.MethodPost, "/v1/admin/relay/credit", gin.H{
		"amount": 5000,
	}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	balance, err := env.relay.Balance()
	require.NoError(t, err)
	assert.Equal(t, uint64(10005000), balance)
}

func TestAdmin_SuperOnlyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	operatorToken := env.loginAs(t, "viewer", "password123", domain.RoleOperator)
	superToken := env.loginAs(t, "root", "password123", domain.RoleSuper)

	body := gin.H{
		"caller":   testOwner,
		"newRelay": testAlice,
	}

	// 普通运营者无权变更角色
	w := env.request(t, http.MethodPut, "/v1/admin/relay-address", body, map[string]string{
		"Authorization": "Bearer " + operatorToken,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 超级运营者可以
	w = env.request(t, http.MethodPut, "/v1/admin/relay-address", body, map[string]string{
		"Authorization": "Bearer " + superToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	roles, err := env.ledger.Roles()
	require.NoError(t, err)
	assert.Equal(t, testAlice, roles.RelayAddress.String())
}

func TestAdmin_SetRelayAddress_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	superToken := env.loginAs(t, "root", "password123", domain.RoleSuper)

	// caller 不是所有者时账本拒绝，原因原文返回
	w := env.request(t, http.MethodPut, "/v1/admin/relay-address", gin.H{
		"caller":   testAlice,
		"newRelay": testBob,
	}, map[string]string{"Authorization": "Bearer " + superToken})

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "caller is not the owner", resp.Msg)
}

func TestAdmin_TransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	superToken := env.loginAs(t, "root", "password123", domain.RoleSuper)

	w := env.request(t, http.MethodPut, "/v1/admin/ownership", gin.H{
		"caller":   testOwner,
		"newOwner": testAlice,
	}, map[string]string{"Authorization": "Bearer " + superToken})
	require.Equal(t, http.StatusOK, w.Code)

	roles, err := env.ledger.Roles()
	require.NoError(t, err)
	assert.Equal(t, testAlice, roles.Owner.String())
}

func TestAdmin_CreateOperator(t *testing.T) {
	env := newTestEnv(t)
	superToken := env.loginAs(t, "root", "password123", domain.RoleSuper)

	w := env.request(t, http.MethodPost, "/v1/admin/operators", gin.H{
		"username": "newoperator",
		"password": "password123",
		"role":     "operator",
	}, map[string]string{"Authorization": "Bearer " + superToken})

	require.Equal(t, http.StatusCreated, w.Code)
	data := dataMap(t, w)
	assert.Equal(t, "newoperator", data["username"])
	assert.Equal(t, "operator", data["role"])

	// 重复用户名冲突
	w = env.request(t, http.MethodPost, "/v1/admin/operators", gin.H{
		"username": "newoperator",
		"password": "password123",
	}, map[string]string{"Authorization": "Bearer " + superToken})
	assert.Equal(t, http.StatusConflict, w.Code)
}
