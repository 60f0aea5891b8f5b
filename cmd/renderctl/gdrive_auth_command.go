package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"adrender/internal/config"
	"adrender/internal/storage"
)

const authTimeout = 3 * time.Minute

// newGDriveAuthCommand runs the OAuth consent flow once and prints the
// refresh token that GDRIVE_REFRESH_TOKEN expects. Configuration is loaded
// without validation because the token does not exist yet.
func newGDriveAuthCommand(ctx *commandContext) *cobra.Command {
	var clientID, clientSecret string

	cmd := &cobra.Command{
		Use:   "gdrive-auth",
		Short: "Obtain a Google Drive refresh token for the gdrive storage provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(ctx.configPath())
			if err != nil {
				return err
			}
			if clientID == "" {
				clientID = cfg.Storage.GDriveClientID
			}
			if clientSecret == "" {
				clientSecret = cfg.Storage.GDriveSecret
			}
			if clientID == "" || clientSecret == "" {
				return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
			}
			return runGDriveAuth(cmd, clientID, clientSecret)
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id (defaults to GDRIVE_CLIENT_ID)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (defaults to GDRIVE_CLIENT_SECRET)")
	return cmd
}

func runGDriveAuth(cmd *cobra.Command, clientID, clientSecret string) error {
	out := cmd.OutOrStdout()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := storage.DriveOAuthConfig(clientID, clientSecret, redirectURL)
	state, err := randomState()
	if err != nil {
		return err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			select {
			case errCh <- err:
			default:
			}
			return
		}
		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// Offline access with forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(authTimeout):
		return fmt.Errorf("timed out waiting for authorization")
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	exchangeCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	tok, err := conf.Exchange(exchangeCtx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	if strings.TrimSpace(tok.RefreshToken) == "" {
		return fmt.Errorf("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and run again")
	}

	fmt.Fprintf(out, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return "", fmt.Errorf("invalid state")
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("auth error: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("missing code")
	}
	return code, nil
}

func randomState() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
