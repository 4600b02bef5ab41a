// Package main is the container probe for crm-server. It asks the readiness
// endpoint once and exits 0 when the server answers 2xx.
//
// Usage: healthcheck [url]
//
// The url defaults to STELLA_HEALTHCHECK_URL, then http://localhost:8080/readyz.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultProbeURL = "http://localhost:8080/readyz"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := probe(ctx, http.DefaultClient, probeURL(os.Args[1:])); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

func probeURL(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if u := os.Getenv("STELLA_HEALTHCHECK_URL"); u != "" {
		return u
	}
	return defaultProbeURL
}

// probe fails unless url answers with a 2xx status.
func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}
