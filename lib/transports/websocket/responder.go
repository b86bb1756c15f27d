package websocket

import (
	"errors"
	"net"
	"strings"

	"github.com/gofiber/contrib/websocket"
)

// isConnectionClosedError reports whether the error is ordinary
// connection teardown rather than something worth logging loudly.
func isConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return true
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}
