package gateway

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type IPNRegistrar interface {
	RegisterIPN(ctx context.Context, listenerURL, notificationType string) (string, error)
}

// Readiness hands out the notification id every submitted order must carry.
// The id is registered once and cached; concurrent callers share one
// registration call and a failed registration is retried on the next call.
type Readiness struct {
	registrar        IPNRegistrar
	listenerURL      string
	notificationType string

	mu    sync.RWMutex
	token string
	sfg   singleflight.Group
}

func NewReadiness(registrar IPNRegistrar, listenerURL, notificationType string) *Readiness {
	return &Readiness{
		registrar:        registrar,
		listenerURL:      listenerURL,
		notificationType: notificationType,
	}
}

func (r *Readiness) Token(ctx context.Context) (string, error) {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	v, err, _ := r.sfg.Do("ipn", func() (interface{}, error) {
		id, err := r.registrar.RegisterIPN(ctx, r.listenerURL, r.notificationType)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.token = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
