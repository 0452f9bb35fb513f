package identity

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// HTTPStore is the production Store: it calls out to the external
// account/identity service §1 Non-goals keeps outside this core's
// persistence, grounded on Danor93-Articles-Chat's go-resty client
// usage for its own outbound REST calls.
type HTTPStore struct {
	client *resty.Client
}

// NewHTTPStore constructs a Store against the external identity
// service's base URL.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1)
	return &HTTPStore{client: client}
}

type lookupResponse struct {
	ExtId uint64 `json:"ext_id"`
}

func (s *HTTPStore) lookup(ctx context.Context, path string) (imtypes.ExtId, bool, error) {
	var out lookupResponse
	resp, err := s.client.R().SetContext(ctx).SetResult(&out).Get(path)
	if err != nil {
		return 0, false, imerr.TransportTransient(err, "identity: external lookup failed")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.IsError() {
		return 0, false, imerr.TransportTransient(nil, "identity: external lookup returned %d", resp.StatusCode())
	}
	return imtypes.ExtId(out.ExtId), true, nil
}

func (s *HTTPStore) LookupByExtId(ctx context.Context, id imtypes.ExtId) (imtypes.ExtId, bool, error) {
	return s.lookup(ctx, "/internal/users/by-ext-id/"+id.String())
}

func (s *HTTPStore) LookupByUsername(ctx context.Context, username string) (imtypes.ExtId, bool, error) {
	return s.lookup(ctx, "/internal/users/by-username/"+username)
}

func (s *HTTPStore) LookupByPhone(ctx context.Context, phone string) (imtypes.ExtId, bool, error) {
	return s.lookup(ctx, "/internal/users/by-phone/"+phone)
}

func (s *HTTPStore) LookupByLegacyId(ctx context.Context, legacyId int64) (imtypes.ExtId, bool, error) {
	return s.lookup(ctx, "/internal/users/by-legacy-id/"+strconv.FormatInt(legacyId, 10))
}
