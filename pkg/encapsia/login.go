package encapsia

import (
	"context"
	"net/url"
	"strconv"
)

type tokenResult struct {
	Token string `json:"token"`
}

// WhoAmI returns the server's description of the current session's user.
func (c *Client) WhoAmI(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, []string{"whoami"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoginTransfer obtains a token for another user, if the current token's
// capabilities permit it.
func (c *Client) LoginTransfer(ctx context.Context, user string) (string, error) {
	var out tokenResult
	if err := c.post(ctx, []string{"login", "transfer", url.PathEscape(user)}, nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// LoginFederate obtains a token from a token issued by a federated origin
// server, mapped through the given federated group.
func (c *Client) LoginFederate(ctx context.Context, originServer, originToken, federatedGroup string) (string, error) {
	body := map[string]string{
		"origin_server": originServer,
		"origin_token":  originToken,
		"group":         federatedGroup,
	}
	var out tokenResult
	if err := c.post(ctx, []string{"login", "federate"}, body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// LoginAgain obtains a fresh token for the same user, optionally narrowing
// capabilities or setting a lifespan in seconds.
func (c *Client) LoginAgain(ctx context.Context, capabilities []string, lifespan int) (string, error) {
	body := map[string]any{}
	if len(capabilities) > 0 {
		body["capabilities"] = capabilities
	}
	if lifespan > 0 {
		body["lifespan"] = lifespan
	}
	var out tokenResult
	if err := c.post(ctx, []string{"login", "again"}, body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// LoginExtend extends the current token's life by the given number of
// seconds, returning the (possibly new) token.
func (c *Client) LoginExtend(ctx context.Context, durationSeconds int) (string, error) {
	var out tokenResult
	if err := c.put(ctx, []string{"login", "extend", strconv.Itoa(durationSeconds)}, nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Logout deletes the current token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.delete(ctx, []string{"logout"}, nil)
}
