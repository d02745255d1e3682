package handler

import (
	"userdock/internal/app/user"
	"userdock/internal/configs"
)

// AppDeps carries what the HTTP handlers need.
type AppDeps struct {
	Config *configs.AppConfig
	Users  *user.Store
}
