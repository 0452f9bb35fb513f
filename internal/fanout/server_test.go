package fanout

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/authtoken"
	"github.com/meshim/imcore/internal/broker"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/identity"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionregistry"
	"github.com/meshim/imcore/internal/store"
	"github.com/meshim/imcore/internal/workerpool"
)

const testSalt = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock, *authtoken.Issuer) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "mysql")

	idStore := identity.NewInMemoryStore()
	idStore.AddUsername("alice", 1)
	idStore.AddUsername("bob", 2)

	verifier, err := authtoken.NewVerifier([]byte(testSalt), 1)
	require.NoError(t, err)
	issuer := authtoken.NewIssuer([]byte(testSalt), 1)

	deps := Deps{
		Messages:  store.NewMessageStore(sqlxDB),
		Chats:     store.NewChatStore(sqlxDB),
		Identity:  identity.New(idStore, nil, time.Hour),
		Registry:  sessionregistry.NewInMemory(),
		Publisher: broker.NewInMemoryPublisher(),
		Offline:   offlinequeue.NewInMemory(),
		Groups:    NewInMemoryGroupDirectory(),
		Pool:      workerpool.New(2, 8),
		Verifier:  verifier,
		Codec:     codec.JSONCodec{},
		Log:       zerolog.Nop(),
	}
	return NewServer(deps), mock, issuer
}

func bearerFor(t *testing.T, issuer *authtoken.Issuer, extId uint64) string {
	t.Helper()
	token, _, err := issuer.Issue(imtypes.ExtId(extId), authtoken.LevelAuth, time.Hour)
	require.NoError(t, err)
	return "Bearer " + base64.RawURLEncoding.EncodeToString(token)
}

func TestHandleSendSingle_PersistsPublishesAndUpsertsBothSides(t *testing.T) {
	s, mock, issuer := newTestServer(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO im_single_message")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM im_chat")).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO im_chat")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM im_chat")).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO im_chat")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body, _ := json.Marshal(map[string]interface{}{
		"from":         "1",
		"to":           "2",
		"body":         "hello",
		"content_type": 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/im/messages/single", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerFor(t, issuer, 1))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sendSingleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSendSingle_NoBearerToken_Unauthorized(t *testing.T) {
	s, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"from": "1", "to": "2", "body": "hi", "content_type": 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/im/messages/single", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleFriendRequest_PublishesControlEnvelope(t *testing.T) {
	s, _, issuer := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"from": "1", "to": "2", "message": "add me?",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/im/control/friend-request", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerFor(t, issuer, 1))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.deps.Publisher.(*broker.InMemoryPublisher).Published, 1)
}

func TestHandleSubscriptionUser_NoAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t)
	reg := newTestRegistryCtx(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions/"+reg.sid+"/user", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp subscriptionUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, imtypes.ExtId(1).String(), resp.UserId)
}

type testRegistryCtx struct{ sid string }

func newTestRegistryCtx(t *testing.T, s *Server) testRegistryCtx {
	t.Helper()
	sid, err := s.deps.Registry.EnsureSubscription(context.Background(), imtypes.ExtId(1))
	require.NoError(t, err)
	return testRegistryCtx{sid: sid}
}
