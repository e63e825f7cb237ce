package httpclient

import (
	"github.com/smallbiznis/chargeback/internal/remote"
	"go.uber.org/fx"
)

var Module = fx.Module("remote.httpclient",
	fx.Provide(New),
	fx.Provide(func(c *Client) remote.Authority { return c }),
)
