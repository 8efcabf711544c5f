package feed

import (
	"go.uber.org/fx"
)

var Module = fx.Module("feed",
	fx.Provide(
		NewRedisSource,
		func(s *RedisSource) Source { return s },
		func(s *RedisSource) BalanceSource { return s },
	),
)
