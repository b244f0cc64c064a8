package main

import (
	"errors"
	"strings"

	"github.com/marmos91/dittowire/pkg/protocol"
)

var errEmptyPath = errors.New("path cannot be empty")

// parseInput turns a console line into a request.
//
// Format: "PATH | k1=v1;k2=v2 | body". Sections after PATH are optional.
// Keep-Alive defaults to true so the session survives; an explicit
// Keep-Alive header overrides it. A header without '=' gets an empty value.
// The body is taken verbatim, including surrounding spaces.
func parseInput(line string) (*protocol.Request, error) {
	parts := strings.SplitN(line, "|", 3)

	path := strings.TrimSpace(parts[0])
	if path == "" {
		return nil, errEmptyPath
	}

	headers := map[string]string{protocol.KeepAliveHeader: "true"}
	body := []byte{}

	if len(parts) >= 2 {
		for _, pair := range strings.Split(parts[1], ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			eq := strings.IndexByte(pair, '=')
			if eq <= 0 {
				headers[pair] = ""
				continue
			}
			headers[strings.TrimSpace(pair[:eq])] = strings.TrimSpace(pair[eq+1:])
		}
	}
	if len(parts) == 3 {
		body = []byte(parts[2])
	}

	return &protocol.Request{Path: path, Headers: headers, Body: body}, nil
}

// isExit reports whether the line ends the session.
func isExit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "exit")
}
