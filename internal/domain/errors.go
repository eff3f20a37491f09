package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNoMarket      = errors.New("no active market")
	ErrStaleQuote    = errors.New("quote too stale")
	ErrFeedUnhealthy = errors.New("reference feed unhealthy")
	ErrRiskRejected  = errors.New("rejected by risk manager")
	ErrOrderRejected = errors.New("order rejected by venue")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
)
