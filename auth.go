package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/EvanUsesRust/gb-emu/internal/claims"
	"github.com/EvanUsesRust/gb-emu/internal/session"
	"github.com/EvanUsesRust/gb-emu/internal/tokenfile"
)

// loginTimeout bounds the interactive login HTTP call.
const loginTimeout = 30 * time.Second

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the issuance endpoint and store the token",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "account username")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved access token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the stored token's subject and validity",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// loginRequest is the JSON body sent to the issuance endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if loadedCfg.Client.AuthURL == "" {
		return fmt.Errorf("client.auth_url is not configured")
	}

	username, _ := cmd.Flags().GetString("username")

	reader := bufio.NewReader(cmd.InOrStdin())

	if username == "" {
		fmt.Fprint(os.Stderr, "Username: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}

		username = strings.TrimSpace(line)
	}

	fmt.Fprint(os.Stderr, "Password: ")

	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	token, err := requestLogin(ctx, loadedCfg.Client.AuthURL, username, password)
	if err != nil {
		return err
	}

	tokenPath, err := loadedCfg.TokenPath()
	if err != nil {
		return err
	}

	if err := tokenfile.Save(tokenPath, tokenfile.File{
		Token:   token,
		Source:  session.SourceLogin.String(),
		SavedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	statusf("Login successful.\n")

	return nil
}

// requestLogin exchanges credentials for a signed access token.
func requestLogin(ctx context.Context, authURL, username, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected: HTTP %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}

	if out.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}

	return out.Token, nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	tokenPath, err := loadedCfg.TokenPath()
	if err != nil {
		return err
	}

	if err := tokenfile.Remove(tokenPath); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

func runWhoami(_ *cobra.Command, _ []string) error {
	tokenPath, err := loadedCfg.TokenPath()
	if err != nil {
		return err
	}

	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return err
	}

	if tf.Token == "" {
		return fmt.Errorf("not logged in — run 'gb-emu login' first")
	}

	// Unverified parse: the client holds no signing secret, and only the
	// server's opinion of the signature matters.
	var cl claims.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tf.Token, &cl); err != nil {
		return fmt.Errorf("stored token is malformed: %w", err)
	}

	expiry := "none"
	if cl.ExpiresAt != nil {
		expiry = cl.ExpiresAt.UTC().Format(time.RFC3339)
	}

	fmt.Printf("Subject:    %s\n", cl.Subject)
	fmt.Printf("Store path: %s\n", cl.StorePath)
	fmt.Printf("Expires:    %s\n", expiry)
	fmt.Printf("Valid:      %t\n", session.TokenValid(tf.Token, time.Now()))
	fmt.Printf("Source:     %s\n", tf.Source)

	return nil
}
