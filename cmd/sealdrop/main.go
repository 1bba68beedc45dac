package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	sealdrop "github.com/sealdrop/client-go"
	"github.com/sealdrop/client-go/internal/config"
)

type cli struct {
	Config   string `help:"Path to a YAML config file." type:"path"`
	BaseURL  string `name:"base-url" help:"Relay base URL."`
	Email    string `short:"e" help:"Account email."`
	LogLevel string `name:"log-level" help:"Log level: debug, info, warn or error."`
	JSON     bool   `name:"json" help:"Print JSON instead of text."`

	Register registerCmd `cmd:"" help:"Create an account on the relay."`
	Whoami   whoamiCmd   `cmd:"" help:"Show the logged-in account and its fingerprint."`
	Users    usersCmd    `cmd:"" help:"List the relay directory."`
	Send     sendCmd     `cmd:"" help:"Send a message."`
	Inbox    inboxCmd    `cmd:"" help:"Show messages addressed to you."`
	History  historyCmd  `cmd:"" help:"Show the conversation with a peer."`
	Watch    watchCmd    `cmd:"" help:"Print messages as they arrive."`
}

// Config holds the process resources the command uses.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Environment replaces the process environment when non-nil.
	Environment map[string]string

	// Password prompts for a password. It defaults to reading from the
	// terminal, or a line of Stdin when Stdin is not a terminal.
	Password func(prompt string) (string, error)

	// Context is the lifetime of the command. Defaults to
	// context.Background().
	Context context.Context
}

// DefaultConfig returns a Config bound to the process.
func DefaultConfig() Config {
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// app is bound into every command's Run method.
type app struct {
	ctx    context.Context
	cfg    *config.Config
	io     Config
	logger *slog.Logger
	json   bool

	client *sealdrop.Client
}

func run(args []string, c Config) error {
	var root cli
	parser, err := kong.New(&root,
		kong.Name("sealdrop"),
		kong.Description("End-to-end encrypted messaging through an untrusted relay."),
		kong.Writers(c.Stdout, c.Stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		args = args[1:]
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	a, err := newApp(&root, c)
	if err != nil {
		return err
	}
	defer a.close()

	return kctx.Run(a)
}

func newApp(root *cli, c Config) (*app, error) {
	cfg, err := config.Load(config.Options{Path: root.Config, Environment: c.Environment})
	if err != nil {
		return nil, err
	}
	if root.BaseURL != "" {
		cfg.BaseURL = root.BaseURL
	}
	if root.Email != "" {
		cfg.Email = root.Email
	}
	if root.LogLevel != "" {
		cfg.LogLevel = root.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(c.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if c.Password == nil {
		c.Password = promptPassword(c)
	}

	client, err := sealdrop.New(clientOptions(cfg, logger)...)
	if err != nil {
		return nil, err
	}

	return &app{
		ctx:    ctx,
		cfg:    cfg,
		io:     c,
		logger: logger,
		json:   root.JSON,
		client: client,
	}, nil
}

func clientOptions(cfg *config.Config, logger *slog.Logger) []sealdrop.Option {
	kdf := sealdrop.DefaultKDFParams()
	if cfg.KDF.Time != 0 {
		kdf.Time = cfg.KDF.Time
	}
	if cfg.KDF.MemoryKiB != 0 {
		kdf.MemoryKiB = cfg.KDF.MemoryKiB
	}
	if cfg.KDF.Parallelism != 0 {
		kdf.Parallelism = cfg.KDF.Parallelism
	}

	return []sealdrop.Option{
		sealdrop.WithBaseURL(cfg.BaseURL),
		sealdrop.WithTimeout(cfg.Timeout),
		sealdrop.WithRetries(cfg.Retries),
		sealdrop.WithLogger(logger),
		sealdrop.WithKDFParams(kdf),
		sealdrop.WithDeliveryStrategy(sealdrop.DeliveryStrategy(cfg.Delivery.Strategy)),
		sealdrop.WithPollingInterval(cfg.Delivery.PollingInterval),
	}
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
}

func (a *app) email() (string, error) {
	if a.cfg.Email == "" {
		return "", errors.New("no account email: pass --email or set " + config.EnvPrefix + "EMAIL")
	}
	return a.cfg.Email, nil
}

func (a *app) password(prompt string) (string, error) {
	if a.cfg.Password != "" {
		return a.cfg.Password, nil
	}
	return a.io.Password(prompt)
}

// login opens a session for the configured account.
func (a *app) login() (*sealdrop.Session, error) {
	email, err := a.email()
	if err != nil {
		return nil, err
	}
	password, err := a.password("Password: ")
	if err != nil {
		return nil, err
	}

	s, err := a.client.Login(a.ctx, email, password)
	if errors.Is(err, sealdrop.ErrSealOpenFailure) {
		return nil, errors.New("login failed: wrong password or unknown account")
	}
	return s, err
}

func promptPassword(c Config) func(string) (string, error) {
	return func(prompt string) (string, error) {
		if f, ok := c.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			defer fmt.Fprintln(c.Stderr)
			fmt.Fprint(c.Stderr, prompt)
			pw, err := term.ReadPassword(int(f.Fd()))
			if err != nil {
				return "", err
			}
			return string(pw), nil
		}

		line, err := bufio.NewReader(c.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("no password given")
		}
		return line, nil
	}
}

func fatal(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	os.Exit(1)
}
