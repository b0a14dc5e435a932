package chamaWeb

import "context"

// LoginWithMpesa runs a whole handshake and blocks until it ends or ctx is
// done. Ending ctx cancels the handshake. On success the token has already
// been written to opts.Tokens when one is set.
func (e *Engine) LoginWithMpesa(ctx context.Context, rawPhone string, opts HandshakeOptions) (string, error) {
	h, err := e.NewHandshake(opts)
	if err != nil {
		return "", err
	}

	if _, err := h.Initiate(ctx, rawPhone); err != nil {
		h.Cancel()
		return "", err
	}

	token, err := h.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		h.Cancel()
	}
	return token, err
}
