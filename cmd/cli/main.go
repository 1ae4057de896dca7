// Command cb is a CLI client for the CareBridge service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/cache"
	pkgcrypto "github.com/carebridge/carebridge/internal/crypto"
	"github.com/carebridge/carebridge/internal/localstore"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/service"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Role        model.Role `json:"role"`
	// UserID is stored encrypted; decrypt with the shared secret.
	UserID string `json:"user_id,omitempty"`
}

func cfgDir() string { return localstore.DefaultDir() }

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tf, errors.New("no valid token (login required)")
	}
	return tf, nil
}

// ---- http client ----

type apiClient struct {
	base   string
	bearer string
	http   *http.Client
}

type apiEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("bad response (%d): %s", resp.StatusCode, raw)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `cb CLI
Usage:
  cb -addr URL [-pubkey file] <cmd> [args]

Commands:
  version
  register   -u <email> -p <password> [-role user|health_worker]   (needs -pubkey)
  login      -u <email> -p <password>          (saves token, caches profile)
  profile                                      (local store first, then server)
  refresh                                      (force server fetch, update cache)
  whoami                                       (decrypts the stored user id)
  online | offline                             (presence toggle)
  notifications                                (list, newest first)
  logout                                       (clears token and local profile)
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the HTTP API.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	pubkeyPath := flag.String("pubkey", "", "server public key (PEM) for registration")
	secret := flag.String("secret", os.Getenv("CB_SHARED_SECRET"), "shared secret for the local profile store")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := zap.NewNop()
	store := localstore.New(cfgDir(), *secret, logger)
	client := &apiClient{base: *addr, http: &http.Client{Timeout: 30 * time.Second}}

	switch cmd {

	case "version":
		fmt.Printf("cb %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "email")
		p := fs.String("p", "", "password")
		role := fs.String("role", "user", "role")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		if *pubkeyPath == "" {
			fmt.Fprintln(os.Stderr, "need -pubkey for registration")
			os.Exit(1)
		}
		pem, err := os.ReadFile(*pubkeyPath)
		if err != nil {
			fail(err)
		}

		// credentials only ever leave the machine inside an RSA envelope
		payload := service.RegisterPayload{Email: *u, Password: *p, Role: model.Role(*role)}
		encrypted, err := pkgcrypto.Encrypt(payload, string(pem))
		if err != nil {
			fail(fmt.Errorf("encrypt registration: %w", err))
		}

		var profile model.Profile
		if err := client.do(ctx, http.MethodPost, "/api/v1/auth/register", map[string]string{"encryptedData": encrypted}, &profile); err != nil {
			fail(err)
		}
		fmt.Println(profile.ID)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}

		var resp struct {
			AccessToken string        `json:"accessToken"`
			Profile     model.Profile `json:"profile"`
		}
		if err := client.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": *u, "password": *p}, &resp); err != nil {
			fail(err)
		}

		// parse exp from JWT
		var claims jwt.RegisteredClaims
		_, _ = jwt.ParseWithClaims(resp.AccessToken, &claims, func(*jwt.Token) (any, error) { return nil, nil },
			jwt.WithoutClaimsValidation(),
		)
		exp := time.Now().Add(15 * time.Minute)
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		// keep the id opaque at rest
		encID, err := pkgcrypto.EncryptID(resp.Profile.ID.String(), *secret)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tokenFile{
			AccessToken: resp.AccessToken,
			ExpiresAt:   exp,
			Role:        resp.Profile.Role,
			UserID:      encID,
		}); err != nil {
			fail(err)
		}
		store.Persist(&resp.Profile)

		fmt.Println("ok")

	case "profile":
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		// local encrypted copy first; server only on miss
		profiles := cache.New[*model.Profile]()
		profile, err := profiles.Get(ctx, string(tf.Role), func(ctx context.Context) (*model.Profile, error) {
			if p := store.Retrieve(tf.Role); p != nil {
				return p, nil
			}
			client.bearer = tf.AccessToken
			var p model.Profile
			if err := client.do(ctx, http.MethodGet, "/api/v1/profile", nil, &p); err != nil {
				return nil, err
			}
			store.Persist(&p)
			return &p, nil
		})
		if err != nil {
			fail(err)
		}
		printJSON(profile)

	case "refresh":
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		client.bearer = tf.AccessToken
		var p model.Profile
		if err := client.do(ctx, http.MethodGet, "/api/v1/profile", nil, &p); err != nil {
			fail(err)
		}
		store.Persist(&p)
		printJSON(&p)

	case "whoami":
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		id, err := pkgcrypto.DecryptID(tf.UserID, *secret)
		if err != nil {
			fail(fmt.Errorf("decrypt user id: %w", err))
		}
		fmt.Println(id)

	case "online", "offline":
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		client.bearer = tf.AccessToken
		if err := client.do(ctx, http.MethodPost, "/api/v1/presence", map[string]string{"status": cmd}, nil); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "notifications":
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		client.bearer = tf.AccessToken
		var list []model.Notification
		if err := client.do(ctx, http.MethodGet, "/api/v1/notifications", nil, &list); err != nil {
			fail(err)
		}
		printJSON(list)

	case "logout":
		tf, err := loadToken()
		if err == nil {
			client.bearer = tf.AccessToken
			// best-effort; local cleanup happens regardless
			_ = client.do(ctx, http.MethodPost, "/api/v1/presence", map[string]string{"status": "offline"}, nil)
			store.Clear(tf.Role)
		}
		_ = os.Remove(tokenPath())
		fmt.Println("ok")

	default:
		usage()
	}
}
