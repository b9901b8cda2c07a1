package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/rzbill/syncq/internal/client"
	"github.com/rzbill/syncq/internal/runtime"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// ControllerRegistry holds every HTTP controller.
type ControllerRegistry struct {
	general *GeneralController
	queue   *QueueController
}

func NewControllerRegistry(rt *runtime.Runtime, proxy *client.Proxy, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		queue:   NewQueueController(rt, proxy, logger),
	}
}

// RegisterAllRoutes mounts every controller on r.
func (c *ControllerRegistry) RegisterAllRoutes(r chi.Router) {
	c.general.RegisterRoutes(r)
	c.queue.RegisterRoutes(r)
}
