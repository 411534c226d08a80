package telegram

import (
	"fmt"

	"github.com/gotd/td/tgerr"

	"github.com/VK79/Radar12/internal/source"
)

// RPC error types that mean the session or the channel itself is broken
// and retrying next cycle cannot help.
var (
	authErrors = []string{
		"AUTH_KEY_UNREGISTERED",
		"AUTH_KEY_INVALID",
		"SESSION_REVOKED",
		"SESSION_EXPIRED",
		"USER_DEACTIVATED",
	}
	accessErrors = []string{
		"CHANNEL_PRIVATE",
		"CHANNEL_INVALID",
		"USERNAME_INVALID",
		"USERNAME_NOT_OCCUPIED",
		"PEER_ID_INVALID",
	}
)

// classify maps RPC failures to the engine's retry semantics. Flood
// waits and transport drops heal with time; dead sessions and revoked
// channels need operator action.
func classify(op string, err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return source.Transient(fmt.Errorf("%s: flood wait %s: %w", op, d, err))
	}
	if tgerr.Is(err, authErrors...) {
		return source.Fatal(fmt.Errorf("%s: %w (run `radar auth`)", op, err))
	}
	if tgerr.Is(err, accessErrors...) {
		return source.Fatal(fmt.Errorf("%s: %w", op, err))
	}
	return source.Transient(fmt.Errorf("%s: %w", op, err))
}
