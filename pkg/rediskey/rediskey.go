package rediskey

import "fmt"

// Feed keys (global convention shared with the backend mirror)
const (
	ActivePrefix        = "rewards:active"
	EventsPrefix        = "rewards:events"
	BalancePrefix       = "rewards:balance"
	BalanceEventsPrefix = "rewards:balance:events"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildActiveKey returns "rewards:active:{userID}", the hash mirroring the
// user's currently matching redemption documents, keyed by redemption code.
func BuildActiveKey(userID string) string {
	return NamespaceKey(ActivePrefix, userID)
}

// BuildEventsChannel returns "rewards:events:{userID}", published on every
// change to the user's matching set.
func BuildEventsChannel(userID string) string {
	return NamespaceKey(EventsPrefix, userID)
}

// BuildBalanceKey returns "rewards:balance:{userID}".
func BuildBalanceKey(userID string) string {
	return NamespaceKey(BalancePrefix, userID)
}

// BuildBalanceEventsChannel returns "rewards:balance:events:{userID}".
func BuildBalanceEventsChannel(userID string) string {
	return NamespaceKey(BalanceEventsPrefix, userID)
}
