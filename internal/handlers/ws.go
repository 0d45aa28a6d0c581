// internal/handlers/ws.go
package handlers

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/arcade/internal/middleware"
	"github.com/jason-s-yu/arcade/internal/protocol"
)

// Subprotocol is the websocket subprotocol browser and relay clients must
// offer. Every message in both directions is a binary frame carrying the
// same byte stream a TCP client would see.
const Subprotocol = "arcade-lobby"

// TokenCookie optionally carries a login token so a websocket client starts
// out authenticated.
const TokenCookie = "auth_token"

// Custom close codes for websocket clients.
const (
	BadSubprotocolError   = 3000 // client did not offer Subprotocol
	InvalidAuthTokenError = 3001 // TokenCookie was present but invalid or expired
	DuplicateSessionError = 3002 // the token's account is already logged in
)

// WebSocketHandler serves lobby connections over websocket. Connections live
// until the peer leaves or ctx is cancelled.
func (d *Dispatcher) WebSocketHandler(ctx context.Context, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: originPatterns,
		})
		if err != nil {
			d.logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.CloseNow()

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the "+Subprotocol+" subprotocol")
			return
		}
		c.SetReadLimit(protocol.MaxMessageSize + 1)

		nc := websocket.NetConn(ctx, c, websocket.MessageBinary)
		cl := d.newClient(protocol.NewConn(nc, d.readTimeout, d.writeTimeout))

		if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
			if d.tokens == nil {
				c.Close(InvalidAuthTokenError, "token login is disabled")
				return
			}
			username, err := d.tokens.AuthenticateJWT(cookie.Value)
			if err != nil {
				c.Close(InvalidAuthTokenError, "invalid auth token")
				return
			}
			if err := d.bind(cl, username); err != nil {
				c.Close(DuplicateSessionError, "account already logged in elsewhere")
				return
			}
		}

		middleware.LogWebSocketConnect(d.logger, r.RemoteAddr, r.URL.Path)
		d.serve(ctx, cl)
		middleware.LogWebSocketDisconnect(d.logger, r.RemoteAddr, r.URL.Path, ctx.Err())
	}
}
