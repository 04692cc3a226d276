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

	"github.com/google/uuid"

	"github.com/troikatech/voice-ivr/pkg/validation"
)

func main() {
	baseURL := flag.String("api", envOr("API_URL", "http://localhost:5000"), "base URL of the IVR service")
	webhook := flag.String("webhook", os.Getenv("IVR_WEBHOOK_URL"), "TwiML entry point the provider fetches (defaults to <api>/voice)")
	message := flag.String("message", "", "custom greeting spoken after language selection")
	username := flag.String("user", os.Getenv("ADMIN_USERNAME"), "admin username, when admin auth is enabled")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password, when admin auth is enabled")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: make-call [flags] <number>[,<number>...]")
		os.Exit(2)
	}

	var numbers []string
	for _, n := range validation.SplitNumbers(strings.Join(flag.Args(), ",")) {
		normalized, err := validation.NormalizeE164(n)
		if err != nil {
			log.Fatalf("Invalid number %q: %v", n, err)
		}
		numbers = append(numbers, normalized)
	}
	if *webhook == "" {
		*webhook = strings.TrimRight(*baseURL, "/") + "/voice"
	}

	client := &http.Client{Timeout: 60 * time.Second}

	fmt.Println("========================================")
	fmt.Printf("Dialing %d number(s)\n", len(numbers))
	fmt.Println("========================================")

	var token string
	if *username != "" && *password != "" {
		fmt.Println("Logging in...")
		token = login(client, *baseURL, *username, *password)
		fmt.Println("✅ Login successful")
	}

	body, err := json.Marshal(map[string]string{
		"to_number":      strings.Join(numbers, ","),
		"webhook_url":    *webhook,
		"custom_message": *message,
	})
	if err != nil {
		log.Fatalf("Failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/make-call", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("❌ Request failed (Status: %d)\n", resp.StatusCode)
		fmt.Println("Response:", string(respBody))
		os.Exit(1)
	}

	var result struct {
		Message string `json:"message"`
		Calls   []struct {
			Number  string `json:"number"`
			CallSID string `json:"call_sid"`
		} `json:"calls"`
		Failed []struct {
			Number string `json:"number"`
			Error  string `json:"error"`
		} `json:"failed"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		fmt.Println("Response:", string(respBody))
		return
	}

	fmt.Println(result.Message)
	for _, c := range result.Calls {
		fmt.Printf("✅ %s -> %s\n", c.Number, c.CallSID)
	}
	for _, f := range result.Failed {
		fmt.Printf("❌ %s: %s\n", f.Number, f.Error)
	}
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}

func login(client *http.Client, baseURL, username, password string) string {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := client.Post(strings.TrimRight(baseURL, "/")+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to login: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		log.Fatalf("Login failed (Status: %d): %s", resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.AccessToken == "" {
		log.Fatalf("No access token in login response: %v", err)
	}
	return result.AccessToken
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
