package auth

import (
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
)

type (
	Config struct {
		AdminToken    string
		ProviderCache cache.Cache[string, model.DbProvider]
	}
	Option func(*Config)
)

func WithAdminToken(token string) Option {
	return func(c *Config) {
		c.AdminToken = token
	}
}

func WithProviderCache(arg cache.Cache[string, model.DbProvider]) Option {
	return func(c *Config) {
		c.ProviderCache = arg
	}
}
