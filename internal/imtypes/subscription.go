package imtypes

import "time"

// SubscriptionRecord is the persisted "subscription_id -> external_id"
// mapping the session registry maintains (§3, §4.8).
type SubscriptionRecord struct {
	SubscriptionId string    `db:"subscription_id" json:"subscription_id"`
	UserId         ExtId     `db:"user_id" json:"user_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// RoutableWindow is the freshness horizon beyond which a subscription
// record is treated as absent (§3, §4.8, §5).
const RoutableWindow = 24 * time.Hour

// IsRoutable reports whether the record is still within the
// freshness window as of now.
func (r SubscriptionRecord) IsRoutable(now time.Time) bool {
	return now.Sub(r.CreatedAt) < RoutableWindow
}
