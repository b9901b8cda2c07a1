package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rzbill/syncq/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// BaseURLFromEnv returns SYNCQ_HTTP or the default local address.
func BaseURLFromEnv() string {
	if v := os.Getenv("SYNCQ_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8787"
}

func getTransport(baseURL BaseURLFunc) transports.QueueTransport {
	return transports.NewHTTPTransport(baseURL, nil)
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPayload returns --data as JSON. A leading @ names a file, and @- reads
// stdin.
func readPayload(data string, stdin io.Reader) (json.RawMessage, error) {
	var b []byte
	switch {
	case data == "@-":
		in, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		b = in
	case strings.HasPrefix(data, "@"):
		in, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, err
		}
		b = in
	default:
		b = []byte(data)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}
	return json.RawMessage(b), nil
}
