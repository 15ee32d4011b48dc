package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

var (
	cliNow  = time.Now
	apiCall = callAPI
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// callAPI sends body as JSON and returns the raw response payload.
func callAPI(method, path string, body interface{}, requireAuth bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, strings.TrimRight(apiEndpoint, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth {
		if apiToken == "" {
			return nil, fmt.Errorf("an auth token is required: pass --token or set REFUND_TOKEN")
		}
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	var decoded struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &decoded) == nil && decoded.Error != "" {
		return nil, &apiError{Status: resp.StatusCode, Message: decoded.Error}
	}
	return nil, &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

// printResult pretty-prints a JSON payload, or a confirmation for empty ones.
func printResult(stdout io.Writer, data []byte, fallback string) {
	if len(bytes.TrimSpace(data)) == 0 {
		fmt.Fprintln(stdout, fallback)
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Fprintln(stdout, strings.TrimSpace(string(data)))
		return
	}
	fmt.Fprintln(stdout, pretty.String())
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}
