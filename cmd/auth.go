package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin logs in with username and password. The session cookies set by the server are saved to the state directory.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	username := cmd.String("username")
	password := cmd.String("password")
	if password == "" {
		r.writePlain("Password: ")
		line, err := bufio.NewReader(r.input).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("%w: password is required", shared.ErrMissingArgument)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	r.logger.Info("logging in", "username", username)

	resp, err := api.Login(ctx, username, password)
	if err != nil {
		return err
	}

	r.logger.Info("authentication successful")

	r.writePlain("✓ Logged in as %s\n", username)
	if resp.Detail != "" {
		r.writePlain("%s\n", resp.Detail)
	}
	return nil
}

// AuthLogout ends the backend session and removes the saved cookies.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	if err := api.Logout(ctx); err != nil {
		// The local session is gone either way.
		r.logger.Warn("logout request failed", "error", err)
	}
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus reports the authenticated user.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	r.logger.Info("checking auth status")

	if !api.Session().Authenticated() {
		return r.writePlain("Authentication: ✗ Not authenticated\n")
	}

	user, err := api.Me(ctx)
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return r.writePlain("Authentication: ✗ Session expired, run 'studyctl auth refresh' or log in again\n")
	}
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}

	r.writePlain("Authentication: ✓ Authenticated\n")
	r.writePlain("User: %s (%s)\n", user.DisplayName(), user.Username)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	return nil
}

// AuthRefresh renews the access cookie with the refresh cookie.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	resp, err := api.Refresh(ctx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Session refreshed\n")
	if resp.Detail != "" {
		r.writePlain("%s\n", resp.Detail)
	}
	return nil
}
