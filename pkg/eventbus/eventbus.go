// Package eventbus defines the best-effort notifier contract. Ledger state is
// committed before anything is emitted; a failed emit is logged and dropped,
// never propagated back into the transaction.
package eventbus

import (
	"context"

	"github.com/numgate/numgate/pkg/domain/events"
)

// HandlerFunc consumes one event. Errors are the handler's problem.
type HandlerFunc func(ctx context.Context, event events.Event) error

// Bus is the contract for emitting and subscribing to notification events.
type Bus interface {
	Register(eventType string, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event) error
}
