package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type check struct {
	Method   string
	Path     string
	Critical bool
}

type result struct {
	Check    check
	Status   int
	Duration time.Duration
	Err      error
}

var checks = []check{
	{Method: http.MethodGet, Path: "/health", Critical: true},
	{Method: http.MethodGet, Path: "/ready", Critical: true},
	{Method: http.MethodGet, Path: "/metrics", Critical: false},
	{Method: http.MethodGet, Path: "/api/v1/auth/me", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/stages", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/leads", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/visits", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/funnel/overview", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/funnel/leaderboard", Critical: false},
}

func main() {
	var (
		base     string
		email    string
		password string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&email, "email", "", "Login email (skips authenticated checks when empty)")
	flag.StringVar(&password, "password", "", "Login password")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}

	token := ""
	if email != "" {
		var err error
		token, err = login(client, base, email, password)
		if err != nil {
			log.Fatalf("login failed: %v", err)
		}
	}

	failed := 0
	for _, c := range checks {
		if token == "" && strings.HasPrefix(c.Path, "/api/") {
			continue
		}
		res := run(client, base, token, c)
		status := "ok"
		if res.Err != nil || res.Status >= 400 {
			status = "FAIL"
			if c.Critical {
				failed++
			}
		}
		fmt.Printf("%-6s %-32s %-4s status=%d dur=%s err=%v\n",
			c.Method, c.Path, status, res.Status, res.Duration.Round(time.Millisecond), res.Err)
	}

	if failed > 0 {
		fmt.Printf("\n%d critical check(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nall critical checks passed")
}

func login(client *http.Client, base, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(base+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Data.AccessToken == "" {
		return "", fmt.Errorf("no access token in response")
	}
	return payload.Data.AccessToken, nil
}

func run(client *http.Client, base, token string, c check) result {
	req, err := http.NewRequest(c.Method, base+c.Path, nil)
	if err != nil {
		return result{Check: c, Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return result{Check: c, Duration: duration, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return result{Check: c, Status: resp.StatusCode, Duration: duration}
}
