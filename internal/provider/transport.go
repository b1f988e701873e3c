package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const maxErrorBody = 4 << 10

// postJSON sends body and returns the streaming response. Any failure,
// including a non-2xx status, is returned as *TransportError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{Provider: provider, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, &TransportError{Provider: provider, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: provider, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg, ok := vendorError(raw)
		if !ok {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &TransportError{Provider: provider, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return resp, nil
}

// vendorError extracts the message of an in-band error payload, if data is one.
func vendorError(data []byte) (string, bool) {
	if !gjson.ValidBytes(data) {
		return "", false
	}
	e := gjson.GetBytes(data, "error")
	if !e.Exists() || e.Type == gjson.Null {
		return "", false
	}
	if m := e.Get("message"); m.Exists() && m.String() != "" {
		return m.String(), true
	}
	if e.String() == "" {
		return "", false
	}
	return e.String(), true
}
