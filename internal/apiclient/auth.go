package apiclient

import (
	"context"
	"net/http"

	"github.com/qcom/banksession/internal/models"
)

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, c.routes.Login, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a user. Whether the response carries credentials depends on
// the deployment.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, c.routes.Register, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RenewToken(ctx context.Context, req models.RenewTokenRequest) (*models.RenewTokenResponse, error) {
	var resp models.RenewTokenResponse
	if err := c.do(ctx, http.MethodPost, c.routes.RenewToken, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context, req models.LogoutRequest) error {
	return c.do(ctx, http.MethodPost, c.routes.Logout, nil, req, nil)
}

func (c *Client) GetProfile(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, c.routes.Profile, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
