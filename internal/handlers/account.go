// internal/handlers/account.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/jason-s-yu/arcade/internal/protocol"
)

var errBadCredentials = errs.Auth("Invalid username or password")

// login authenticates with either a password or a previously issued token
// and binds the player to this connection. A player can hold one session.
func (d *Dispatcher) login(ctx context.Context, c *client, r protocol.LoginRequest) (any, error) {
	if c.user != "" {
		return nil, errs.Invalid("Already logged in")
	}

	username, err := d.authenticate(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := d.bind(c, username); err != nil {
		return nil, err
	}

	reply := protocol.LoginReply{Reply: protocol.OK(), Username: username}
	if d.tokens != nil {
		token, err := d.tokens.CreateJWT(username)
		if err != nil {
			c.log.WithError(err).Warn("failed to issue token")
		}
		reply.Token = token
	}
	return reply, nil
}

func (d *Dispatcher) authenticate(ctx context.Context, r protocol.LoginRequest) (string, error) {
	if r.Token != "" && r.Password == "" {
		if d.tokens == nil {
			return "", errBadCredentials
		}
		username, err := d.tokens.AuthenticateJWT(r.Token)
		if err != nil || (r.Username != "" && r.Username != username) {
			return "", errs.Auth("Invalid or expired token")
		}
		return username, nil
	}

	username := strings.TrimSpace(r.Username)
	if username == "" || r.Password == "" {
		return "", errBadCredentials
	}
	ok, err := d.store.VerifyUser(ctx, models.RolePlayer, username, r.Password)
	if err != nil {
		return "", errs.Internal(fmt.Errorf("verify %s: %w", username, err))
	}
	if !ok {
		return "", errBadCredentials
	}
	return username, nil
}

// bind claims username for c's connection.
func (d *Dispatcher) bind(c *client, username string) error {
	if !d.sessions.Bind(username, c.conn) {
		return errs.Auth("Account already logged in elsewhere")
	}
	c.user = username
	c.log = c.log.WithField("user", username)
	c.log.Info("player logged in")
	return nil
}

func (d *Dispatcher) register(ctx context.Context, r protocol.RegisterRequest) (any, error) {
	username := strings.TrimSpace(r.Username)
	if username == "" || r.Password == "" {
		return nil, errs.Invalid("Username and password are required")
	}
	err := d.store.RegisterUser(ctx, &models.User{Username: username, Password: r.Password, Role: models.RolePlayer})
	if errors.Is(err, database.ErrAlreadyExists) {
		return nil, errs.Auth("Username already taken")
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("register %s: %w", username, err))
	}
	d.logger.WithField("user", username).Info("player registered")
	return protocol.RegisterReply{Reply: protocol.OK(), Msg: "Registration successful"}, nil
}
