package fanout

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/imtypes"
)

func TestHandleSingleHistory_ExcludesCallInvitesAndTombstones(t *testing.T) {
	s, mock, issuer := newTestServer(t)

	rows := sqlmock.NewRows([]string{
		"message_id", "from_id", "to_id", "body", "time", "content_type",
		"read_status", "sequence", "del_flag", "reply_to", "file_url", "file_name", "file_type",
	}).AddRow("m1", 1, 2, "hi", 100, 1, 0, 100, 1, "", "", "", "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM im_single_message")).
		WithArgs(uint64(2), int64(0), imtypes.ContentCallInvite, imtypes.DelFlagLive, 50).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/api/im/messages/single?to_id=2", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer, 1))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSingleHistory_MissingToId_BadRequest(t *testing.T) {
	s, _, issuer := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/im/messages/single", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer, 1))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGroupHistory_ReturnsRows(t *testing.T) {
	s, mock, issuer := newTestServer(t)

	rows := sqlmock.NewRows([]string{
		"message_id", "group_id", "from_id", "body", "time", "content_type", "sequence", "del_flag", "reply_to",
	}).AddRow("m1", "g1", 1, "hi", 100, 1, 100, 1, "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM im_group_message")).WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/api/im/messages/group/g1", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer, 1))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMarkSingleRead_UsesClaimsExtId(t *testing.T) {
	s, mock, issuer := newTestServer(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE im_single_message SET read_status = 1")).
		WithArgs("m1", uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/im/messages/single/m1/read", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer, 2))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMarkSingleRead_NotFound(t *testing.T) {
	s, mock, issuer := newTestServer(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE im_single_message SET read_status = 1")).
		WithArgs("missing", uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodPost, "/api/im/messages/single/missing/read", nil)
	req.Header.Set("Authorization", bearerFor(t, issuer, 2))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusOK, rec.Code)
}
