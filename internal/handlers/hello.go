package handlers

import (
	"context"
	"fmt"

	"github.com/marmos91/dittowire/pkg/protocol"
)

// HelloPath is the route the hello handler is registered on.
const HelloPath = "/hello"

// Hello echoes the request body back inside a greeting.
type Hello struct{}

// ServeWire implements router.Handler.
func (Hello) ServeWire(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	body := fmt.Sprintf("Hello from server, your body was: [%s]", req.Body)
	return protocol.NewResponse(StatusOK, []byte(body)), nil
}
