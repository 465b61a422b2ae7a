// Command terminal_token issues and inspects terminal bearer tokens.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/noah-isme/backend-caja/internal/auth"
	"github.com/noah-isme/backend-caja/internal/config"
)

func main() {
	app := &cli.App{
		Name:  "terminal_token",
		Usage: "issue and inspect register terminal tokens",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "sign a token binding a terminal and cashier",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "terminal", Usage: "terminal identifier", Required: true},
					&cli.StringFlag{Name: "cashier", Usage: "cashier recorded as the seller"},
				},
				Action: issue,
			},
			{
				Name:      "inspect",
				Usage:     "validate a token and print its identity",
				ArgsUsage: "<token>",
				Action:    inspect,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func tokens() (*auth.Tokens, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return auth.NewTokens(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.AuthIssuer,
		Audience:  cfg.AuthAudience,
		ClockSkew: cfg.AuthClockSkew,
		TTL:       cfg.AuthTokenTTL,
	})
}

func issue(c *cli.Context) error {
	t, err := tokens()
	if err != nil {
		return err
	}
	token, expires, err := t.Sign(auth.Identity{Terminal: c.String("terminal"), Cashier: c.String("cashier")})
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "expires %s\n", expires.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one token argument is required", 2)
	}
	t, err := tokens()
	if err != nil {
		return err
	}
	id, err := t.Parse(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "terminal=%s cashier=%s\n", id.Terminal, id.Cashier)
	return nil
}
