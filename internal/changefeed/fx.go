package changefeed

import "go.uber.org/fx"

// Module provides the shared change-feed hub.
var Module = fx.Module("changefeed",
	fx.Provide(NewHub),
)
