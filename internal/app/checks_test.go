package app_test

import (
	"context"
	"errors"

	"github.com/MrWong99/pitwall/internal/health"
)

func healthyDiscord() health.Checker {
	return health.Checker{Name: "discord", Check: func(context.Context) error { return nil }}
}

func discordDown() health.Checker {
	return health.Checker{Name: "discord", Check: func(context.Context) error {
		return errors.New("gateway not ready")
	}}
}
