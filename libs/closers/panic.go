// Package closers finishes io.Closers in deferred positions where an error
// has nowhere better to go.
package closers

import (
	"context"
	"errors"
	"io"

	"github.com/portal-pay/portal-go/libs/logging"
)

// Panic closes c, panicking when the close fails. A close failing because the
// request context timed out is logged and swallowed instead, it is not worth
// taking the process down over.
func Panic(ctx context.Context, c io.Closer) {
	if c == nil {
		return
	}
	err := c.Close()
	if err == nil {
		return
	}

	logging.Logger(ctx, "closers.Panic").Error().Err(err).Msg("error attempting to close")
	if errors.Is(err, context.Canceled) || err.Error() == "context canceled" {
		return
	}
	panic(err.Error())
}
