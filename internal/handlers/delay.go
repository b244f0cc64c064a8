package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittowire/pkg/protocol"
)

// DelayPath is the route the delay handler is registered on.
const DelayPath = "/delay"

// DefaultMaxDelay caps the Delay header when no explicit limit is configured.
const DefaultMaxDelay = 30 * time.Second

// ErrInvalidDelay is returned for a Delay header that is not a non-negative
// integer number of milliseconds.
var ErrInvalidDelay = errors.New("handlers: invalid Delay header")

// Delay waits for the number of milliseconds given in the Delay header and
// then reports how long it waited. A missing header means no wait.
//
// Waits longer than MaxDelay are clamped. The wait ends early when the
// request context is cancelled, in which case the context error is returned.
type Delay struct {
	MaxDelay time.Duration
}

// NewDelay returns a Delay handler. maxDelay <= 0 selects DefaultMaxDelay.
func NewDelay(maxDelay time.Duration) *Delay {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Delay{MaxDelay: maxDelay}
}

// ServeWire implements router.Handler.
func (d *Delay) ServeWire(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	wait, err := d.parse(req)
	if err != nil {
		return nil, err
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	body := fmt.Sprintf("Waited for %dms", wait.Milliseconds())
	return protocol.NewResponse(StatusOK, []byte(body)), nil
}

func (d *Delay) parse(req *protocol.Request) (time.Duration, error) {
	raw, ok := req.Header(protocol.DelayHeader)
	if !ok {
		return 0, nil
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, raw)
	}

	limit := d.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	// Compare in milliseconds so huge values cannot overflow a Duration.
	if ms > limit.Milliseconds() {
		return limit, nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}
