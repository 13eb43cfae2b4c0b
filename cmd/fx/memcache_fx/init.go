package memcache_fx

import (
	"go.uber.org/fx"
	mem "storehere/pkg/memcache"
)

var Module = fx.Provide(provideEventCache)

func provideEventCache() mem.EventCache {
	return mem.NewProcessedEvents(10000)
}
