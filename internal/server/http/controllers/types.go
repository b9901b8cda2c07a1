package controllers

import "encoding/json"

type enqueueReq struct {
	QueueName   string          `json:"queueName" validate:"required"`
	ResourceKey string          `json:"resourceKey" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}

type startReq struct {
	Token string `json:"token"`
}

type purgeReq struct {
	QueueName   string `json:"queueName" validate:"required"`
	ResourceKey string `json:"resourceKey" validate:"required"`
}
