package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittowire/pkg/protocol"
)

// Scenario is the traffic one load run generates.
//
// Example file:
//
//	requests:
//	  - path: /hello
//	    headers: {Keep-Alive: "true"}
//	    random_body: {min: 0, max: 1500}
//	    repeat: 10000
//	  - path: /delay
//	    headers: {Keep-Alive: "true", Delay: "10"}
//	    body: ping
//	    repeat: 10000
type Scenario struct {
	Requests []RequestSpec `yaml:"requests"`
}

// RequestSpec is one request shape, sent Repeat times.
type RequestSpec struct {
	Path       string            `yaml:"path"`
	Headers    map[string]string `yaml:"headers"`
	Body       string            `yaml:"body"`
	RandomBody *BodyRange        `yaml:"random_body"`
	Repeat     int               `yaml:"repeat"`
}

// BodyRange asks for a printable ASCII body of random length in [Min, Max].
type BodyRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// defaultScenario mirrors the classic hello + delay mix.
func defaultScenario(repeat int) *Scenario {
	return &Scenario{Requests: []RequestSpec{
		{
			Path:       "/hello",
			Headers:    map[string]string{protocol.KeepAliveHeader: "true"},
			RandomBody: &BodyRange{Min: 0, Max: 1500},
			Repeat:     repeat,
		},
		{
			Path:    "/delay",
			Headers: map[string]string{protocol.KeepAliveHeader: "true", protocol.DelayHeader: "10"},
			Body:    "ping",
			Repeat:  repeat,
		},
	}}
}

// loadScenario reads a YAML scenario file.
func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Requests) == 0 {
		return fmt.Errorf("scenario has no requests")
	}
	for i, spec := range s.Requests {
		if spec.Path == "" {
			return fmt.Errorf("requests[%d]: path is required", i)
		}
		if r := spec.RandomBody; r != nil && (r.Min < 0 || r.Max < r.Min) {
			return fmt.Errorf("requests[%d]: invalid random_body range [%d, %d]", i, r.Min, r.Max)
		}
		if _, err := protocol.EncodeRequest(spec.Path, spec.Headers, nil); err != nil {
			return fmt.Errorf("requests[%d]: %w", i, err)
		}
	}
	return nil
}

// plan expands the scenario into the individual requests to send.
//
// Every request carries Keep-Alive: true unless the scenario sets it, so
// workers can reuse their connection.
func (s *Scenario) plan() []*protocol.Request {
	var out []*protocol.Request
	for _, spec := range s.Requests {
		headers := make(map[string]string, len(spec.Headers)+1)
		headers[protocol.KeepAliveHeader] = "true"
		for k, v := range spec.Headers {
			headers[k] = v
		}

		repeat := max(spec.Repeat, 1)
		for range repeat {
			out = append(out, &protocol.Request{
				Path:    spec.Path,
				Headers: headers,
				Body:    spec.body(),
			})
		}
	}
	return out
}

func (spec RequestSpec) body() []byte {
	if spec.RandomBody == nil {
		return []byte(spec.Body)
	}
	n := spec.RandomBody.Min + rand.IntN(spec.RandomBody.Max-spec.RandomBody.Min+1)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(32 + rand.IntN(95)) // printable ASCII
	}
	return b
}
