// Command chamactl logs in to MyChama from a terminal and keeps the access
// token in ~/.mychama/token.
//
//	chamactl login -phone 0712345678     M-Pesa prompt, waits for confirmation
//	chamactl password -phone 0712345678  password login, reads the password from stdin
//	chamactl status                      checks the stored token once
//	chamactl chamas                      lists your chamas
//	chamactl logout                      forgets the stored token
//
// CHAMA_API overrides the platform base URL.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/internal/logging"
	"github.com/MrEthical07/chamaWeb/internal/tokenfile"
	"go.uber.org/zap"
)

const defaultAPI = "http://localhost:8000/api"

type cli struct {
	engine *chamaWeb.Engine
	tokens *tokenfile.Store
	out    io.Writer
	in     io.Reader
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	phoneNumber := fs.String("phone", "", "phone number, e.g. 0712345678")
	verbose := fs.Bool("v", false, "log engine activity to stderr")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	log := zap.NewNop()
	if *verbose {
		l, err := logging.New(true)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		log = l
	}
	defer func() { _ = log.Sync() }()

	c, err := newCLI(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer c.engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "login":
		err = c.mpesaLogin(ctx, *phoneNumber)
	case "password":
		err = c.passwordLogin(ctx, *phoneNumber)
	case "status":
		err = c.status(ctx)
	case "chamas":
		err = c.chamas(ctx)
	case "logout":
		err = c.tokens.ClearToken(ctx)
		if err == nil {
			fmt.Fprintln(c.out, "Logged out.")
		}
	default:
		usage()
		return 2
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, chamaWeb.UserMessage(err, err.Error()))
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chamactl login|password|status|chamas|logout [-phone N] [-v]")
}

func newCLI(log *zap.Logger) (*cli, error) {
	tokens, err := tokenfile.Default()
	if err != nil {
		return nil, err
	}

	cfg := chamaWeb.DefaultConfig()
	cfg.API.BaseURL = defaultAPI
	if v := strings.TrimSpace(os.Getenv("CHAMA_API")); v != "" {
		cfg.API.BaseURL = v
	}

	engine, err := chamaWeb.New().
		WithConfig(cfg).
		WithLogger(log).
		Build()
	if err != nil {
		return nil, err
	}
	return &cli{engine: engine, tokens: tokens, out: os.Stdout, in: os.Stdin}, nil
}

func (c *cli) notifier() chamaWeb.Notifier {
	return chamaWeb.NotifierFunc(func(n chamaWeb.Notice) {
		fmt.Fprintf(c.out, "[%s] %s\n", n.Level, n.Message)
	})
}

func (c *cli) mpesaLogin(ctx context.Context, phoneNumber string) error {
	_, err := c.engine.LoginWithMpesa(ctx, phoneNumber, chamaWeb.HandshakeOptions{
		Tokens:   c.tokens,
		Notifier: c.notifier(),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(c.out, "Login cancelled.")
			return nil
		}
		return err
	}
	fmt.Fprintf(c.out, "Logged in. Token saved to %s\n", c.tokens.Path())
	return nil
}

func (c *cli) passwordLogin(ctx context.Context, phoneNumber string) error {
	fmt.Fprint(c.out, "Password: ")
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if _, err := c.engine.PasswordLogin(ctx, phoneNumber, strings.TrimRight(line, "\r\n"), c.tokens); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in. Token saved to %s\n", c.tokens.Path())
	return nil
}

func (c *cli) status(ctx context.Context) error {
	result, err := c.engine.Bootstrap(ctx, c.tokens)
	if err != nil {
		return err
	}
	switch result {
	case chamaWeb.BootstrapValid:
		fmt.Fprintln(c.out, "Logged in.")
	case chamaWeb.BootstrapCleared:
		fmt.Fprintln(c.out, "Stored token was no longer valid and has been removed.")
	default:
		fmt.Fprintln(c.out, "Not logged in.")
	}
	return nil
}

func (c *cli) chamas(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("not logged in")
	}

	views, err := c.engine.MyChamas(ctx, token)
	if err != nil {
		if errors.Is(err, chamaWeb.ErrUnauthorized) {
			_ = c.tokens.ClearToken(ctx)
			return errors.New("session expired, log in again")
		}
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tACTIONS")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.ChamaID, v.Name, v.Role, strings.Join(v.Actions, ","))
	}
	return tw.Flush()
}
