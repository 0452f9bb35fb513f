package fanout

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

// HTTPGroupDirectory is the production GroupDirectory: group
// membership CRUD is an external collaborator's concern (§1
// Non-goals), reached the same way internal/identity.HTTPStore reaches
// the account service, via go-resty.
type HTTPGroupDirectory struct {
	client *resty.Client
}

func NewHTTPGroupDirectory(baseURL string, timeout time.Duration) *HTTPGroupDirectory {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPGroupDirectory{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout).SetRetryCount(1),
	}
}

type groupResponse struct {
	GroupId   string `json:"group_id"`
	DelFlag   int    `json:"del_flag"`
	MemberIds []uint64 `json:"member_ids"`
}

func (d *HTTPGroupDirectory) GetGroup(ctx context.Context, groupId string) (GroupInfo, error) {
	var out groupResponse
	resp, err := d.client.R().SetContext(ctx).SetResult(&out).Get("/internal/groups/" + groupId)
	if err != nil {
		return GroupInfo{}, imerr.TransportTransient(err, "fanout: external group lookup failed")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return GroupInfo{}, imerr.NotFound("fanout: group %s not found", groupId)
	}
	if resp.IsError() {
		return GroupInfo{}, imerr.TransportTransient(nil, "fanout: external group lookup returned %d", resp.StatusCode())
	}
	return GroupInfo{GroupId: out.GroupId, Dissolved: out.DelFlag == 0}, nil
}

func (d *HTTPGroupDirectory) Members(ctx context.Context, groupId string) ([]imtypes.ExtId, error) {
	var out groupResponse
	resp, err := d.client.R().SetContext(ctx).SetResult(&out).Get("/internal/groups/" + groupId)
	if err != nil {
		return nil, imerr.TransportTransient(err, "fanout: external group members lookup failed")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, imerr.NotFound("fanout: group %s not found", groupId)
	}
	if resp.IsError() {
		return nil, imerr.TransportTransient(nil, "fanout: external group members lookup returned %d", resp.StatusCode())
	}
	members := make([]imtypes.ExtId, len(out.MemberIds))
	for i, m := range out.MemberIds {
		members[i] = imtypes.ExtId(m)
	}
	return members, nil
}
