package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Router dispatches payment requests to the handler registered for the
// requested method and turns handler callbacks into a progress stream.
type Router struct {
	handlers map[Method]Handler
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRouter creates a router over the given handlers. Later handlers for
// the same method replace earlier ones.
func NewRouter(logger *slog.Logger, timeout time.Duration, handlers ...Handler) *Router {
	m := make(map[Method]Handler, len(handlers))
	for _, h := range handlers {
		m[h.Method()] = h
	}
	return &Router{handlers: m, timeout: timeout, logger: logger}
}

// Methods lists the registered payment methods.
func (r *Router) Methods() []Method {
	out := make([]Method, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	return out
}

// Process runs the payment on the handler for method and returns its
// progress stream. The stream carries zero or more loading events, then
// exactly one terminal event, and is closed. The whole payment is bounded
// by the router timeout.
func (r *Router) Process(ctx context.Context, method Method, req Request) <-chan Progress {
	out := make(chan Progress, 8)

	handler, ok := r.handlers[method]
	if !ok {
		out <- Progress{
			Stage: StageError,
			Err:   newError(CodeUnsupportedMethod, fmt.Errorf("no handler for method %q", method)),
		}
		close(out)
		return out
	}

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		start := time.Now()
		emit := func(message string) {
			select {
			case out <- Progress{Stage: StageLoading, Message: message}:
			case <-ctx.Done():
			}
		}

		result, err := handler.Pay(ctx, req, emit)
		if err != nil {
			perr := Classify(err)
			r.logger.Error("payment failed",
				"method", method,
				"wallet", req.WalletAddress,
				"asset_id", req.AssetID,
				"code", perr.Code,
				"duration", time.Since(start),
				"error", err,
			)
			out <- Progress{Stage: StageError, Message: perr.Message, Err: perr}
			return
		}

		r.logger.Info("payment completed",
			"method", method,
			"wallet", req.WalletAddress,
			"asset_id", req.AssetID,
			"purchase_id", result.Purchase.ID,
			"simulated", result.Simulated,
			"duration", time.Since(start),
		)
		out <- Progress{Stage: StageSuccess, Message: "Payment completed", Result: result}
	}()

	return out
}
