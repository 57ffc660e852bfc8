package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// adminRequest issues a request against a running XDR instance's admin
// plane and returns the decoded JSON body, or an error that already
// includes the response status for non-2xx results.
func adminRequest(method, addr, path string, body io.Reader) (map[string]interface{}, error) {
	url := strings.TrimRight(addr, "/") + path

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decoded, fmt.Errorf("%s %s: status %d: %v", method, path, resp.StatusCode, decoded["error"])
	}

	return decoded, nil
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}
