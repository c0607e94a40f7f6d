// Package relay couples a provider's output stream to the caller's
// response stream. Each chunk is forwarded the moment it arrives and
// appended to a private accumulator, so the buffer handed to billing is
// byte-identical, in order, to what the caller received.
//
// Forwarding is synchronous: the next provider chunk is not consumed
// until the caller's transport has accepted the current one. A slow
// caller therefore throttles the provider read loop instead of growing
// an unbounded buffer.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prosegate/prosegate/internal/domain"
)

// Run forwards chunks to w until the provider signals end-of-stream.
//
// On a clean end it returns the completed outcome. A provider error
// before the first byte is returned as-is so the boundary can surface
// it; an error or cancellation after bytes have been delivered returns
// ErrStreamInterrupted and a nil outcome. A partial generation is
// never billed.
func Run(ctx context.Context, w io.Writer, modelID, title string, chunks <-chan string, errs <-chan error) (*domain.RewriteOutcome, error) {
	outcome := domain.NewRewriteOutcome(modelID)
	flusher, _ := w.(http.Flusher)
	delivered := false

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// Provider closed the stream. A buffered terminal error
				// means the close was not clean, and so does a cancelled
				// context: providers bail out of their ctx.Done arm by
				// closing both channels without sending an error.
				if err := drainErr(errs); err != nil {
					return nil, interrupted(err, delivered)
				}
				if err := ctx.Err(); err != nil {
					return nil, interrupted(err, delivered)
				}
				outcome.Complete(title)
				return outcome, nil
			}

			if _, err := io.WriteString(w, chunk); err != nil {
				return nil, fmt.Errorf("%w: caller write: %v", domain.ErrStreamInterrupted, err)
			}
			if flusher != nil {
				flusher.Flush()
			}
			outcome.Append(chunk)
			delivered = true

		case err, ok := <-errs:
			if ok && err != nil {
				return nil, interrupted(err, delivered)
			}

		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, ctx.Err())
		}
	}
}

func drainErr(errs <-chan error) error {
	select {
	case err, ok := <-errs:
		if ok {
			return err
		}
	default:
	}
	return nil
}

func interrupted(err error, delivered bool) error {
	if delivered {
		return fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderError, err)
}
