package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/plateshare/plateshare/internal/auth"
	"github.com/plateshare/plateshare/internal/browser"
	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/ops"
	"github.com/plateshare/plateshare/internal/scan"
	"github.com/plateshare/plateshare/internal/session"
	"github.com/plateshare/plateshare/internal/tui"
	"github.com/plateshare/plateshare/internal/wallet"
	"github.com/plateshare/plateshare/pkg/client"
	"github.com/plateshare/plateshare/pkg/domain"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// Config is the environment-driven configuration. A .env file in the working
// directory is loaded first, real environment variables win.
type Config struct {
	APIURL      string `env:"PLATESHARE_API_URL" envDefault:"https://api.plateshare.network"`
	KeyFile     string `env:"PLATESHARE_KEYFILE"`
	DataDir     string `env:"PLATESHARE_DATA_DIR"`
	IPFSGateway string `env:"PLATESHARE_IPFS_GATEWAY" envDefault:"https://ipfs.io/ipfs/"`
}

func loadConfig() (Config, error) {
	godotenv.Load() //nolint:errcheck // a missing .env is fine

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		dir, err := session.DefaultDir()
		if err != nil {
			return cfg, err
		}
		cfg.DataDir = dir
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(cfg.DataDir, "wallet.key")
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "version", "-v":
			fmt.Println("plateshare " + version)
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "login":
			return runLogin(cfg)
		case "logout":
			return runLogout(cfg)
		case "whoami":
			return runWhoami(cfg)
		case "role":
			return runRole(cfg, os.Args[2:])
		case "scan":
			return runScan(cfg, os.Args[2:])
		}
	}

	store := session.NewStore(cfg.DataDir)
	api := client.New(cfg.APIURL, store.Token())

	// Expired or missing sessions re-authenticate up front; the TUI itself
	// never drives the handshake.
	w, err := wallet.LoadOrGenerate(cfg.KeyFile)
	if err != nil {
		return err
	}
	authn := auth.New(api, w, store, nil)
	if err := authn.EnsureSession(context.Background()); err != nil {
		return err
	}

	c := cache.New()
	deps := &tui.Deps{
		API:         api,
		Cache:       c,
		Ops:         ops.New(api, c, store),
		Store:       store,
		Pipeline:    scan.New(api),
		IPFSGateway: cfg.IPFSGateway,
	}

	p := tea.NewProgram(tui.NewApp(deps, version), tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func runLogin(cfg Config) error {
	store := session.NewStore(cfg.DataDir)
	api := client.New(cfg.APIURL, "")
	w, err := wallet.LoadOrGenerate(cfg.KeyFile)
	if err != nil {
		return err
	}

	fmt.Println("wallet " + w.Address())
	authn := auth.New(api, w, store, func() {
		fmt.Println("signed in")
	})
	return authn.Authenticate(context.Background())
}

func runLogout(cfg Config) error {
	store := session.NewStore(cfg.DataDir)
	api := client.New(cfg.APIURL, store.Token())
	if err := auth.New(api, nil, store, nil).Logout(); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func runWhoami(cfg Config) error {
	store := session.NewStore(cfg.DataDir)
	sess := store.Session()
	if sess == nil {
		fmt.Println("not signed in — run: plateshare login")
		return nil
	}
	fmt.Println("address  " + sess.User.WalletAddress)
	fmt.Println("role     " + string(sess.User.Role))
	if err := store.Valid(); err != nil {
		fmt.Println("session  " + err.Error())
	} else if exp := store.ExpiresAt(); !exp.IsZero() {
		fmt.Println("session  valid until " + exp.Format(time.RFC1123))
	} else {
		fmt.Println("session  valid")
	}
	return nil
}

// runRole promotes or demotes a user. Organizer-only on the server side.
func runRole(cfg Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: plateshare role <user-id> <volunteer|organizer|admin>")
	}
	api, store, err := authedClient(cfg)
	if err != nil {
		return err
	}
	c := cache.New()
	if err := ops.New(api, c, store).UpdateRole(context.Background(), args[0], domain.Role(args[1])); err != nil {
		return err
	}
	fmt.Printf("role of %s set to %s\n", args[0], args[1])
	return nil
}

// runScan drives the scan chain without the TUI, for kiosk-style setups
// where codes arrive on the command line.
func runScan(cfg Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: plateshare scan <code> [quantity]")
	}
	quantity := 1
	if len(args) > 1 {
		q, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		quantity = q
	}

	api, _, err := authedClient(cfg)
	if err != nil {
		return err
	}
	pipeline := scan.New(api)
	pipeline.OnStage = func(s scan.State) {
		fmt.Println(s.String() + "...")
	}
	res, err := pipeline.Process(context.Background(), args[0], quantity, "")
	if err != nil {
		return err
	}
	fmt.Println("reward minted: token " + res.NFT.NFTTokenID)
	if res.NFT.IPFSCid != "" {
		fmt.Println(browser.GatewayURL(cfg.IPFSGateway, res.NFT.IPFSCid))
	}
	return nil
}

// authedClient builds a client with a verified session, re-running the
// handshake if the stored one expired.
func authedClient(cfg Config) (*client.Client, *session.Store, error) {
	store := session.NewStore(cfg.DataDir)
	api := client.New(cfg.APIURL, store.Token())
	w, err := wallet.LoadOrGenerate(cfg.KeyFile)
	if err != nil {
		return nil, nil, err
	}
	if err := auth.New(api, w, store, nil).EnsureSession(context.Background()); err != nil {
		return nil, nil, err
	}
	return api, store, nil
}

func printHelp() {
	fmt.Println(`plateshare — food rescue events, scans and rewards

usage:
  plateshare              launch the TUI
  plateshare login        run the wallet sign-in handshake
  plateshare logout       destroy the stored session
  plateshare whoami       show the current session
  plateshare role <user-id> <role>
                          change a user's role (organizer only)
  plateshare scan <code> [quantity]
                          run a scan chain without the TUI
  plateshare version      print the version

environment:
  PLATESHARE_API_URL       API base URL
  PLATESHARE_KEYFILE       wallet key file (created on first run)
  PLATESHARE_DATA_DIR      session and hand-off directory
  PLATESHARE_IPFS_GATEWAY  gateway for ipfs:// reward links`)
}
