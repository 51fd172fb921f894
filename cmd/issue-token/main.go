// Command issue-token signs a bearer token that the gateway accepts.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"storefront-gateway/internal/auth"
)

type cli struct {
	Secret  string            `kong:"required,help='Shared HMAC secret.',env='JWT_SECRET'"`
	Subject string            `kong:"arg,help='Subject (user ID) of the token.'"`
	TTL     time.Duration     `kong:"name='ttl',default='1h',help='Token lifetime; 0 for no expiry.'"`
	Claim   map[string]string `kong:"short='c',help='Extra claim as key=value (repeatable).'"`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("issue-token"),
		kong.Description("Issue a signed bearer token for the storefront gateway."),
	)

	token, err := auth.Sign(c.Secret, c.Subject, c.TTL, c.Claim)
	ctx.FatalIfErrorf(err)

	if _, err := fmt.Fprintln(os.Stdout, token); err != nil {
		ctx.FatalIfErrorf(err)
	}
}
