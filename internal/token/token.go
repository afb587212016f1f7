// Package token mints confirmation tokens and the links that carry them.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/url"
)

const (
	// Bits of entropy in every token.
	Bits = 256

	// radix 36 keeps tokens to [0-9a-z]; 2^256 needs at most 50 digits.
	radix     = 36
	MaxLength = 50
)

// Link is a freshly minted confirmation token and the absolute URL that
// redeems it.
type Link struct {
	Token string
	URL   string
}

// Generator produces confirmation links. The zero value reads from
// crypto/rand.
type Generator struct {
	random io.Reader
}

func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// Generate mints a token and appends confirm/<token> to baseURL, keeping any
// path prefix baseURL already has.
func (g *Generator) Generate(baseURL string) (Link, error) {
	tok, err := g.newToken()
	if err != nil {
		return Link{}, err
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return Link{}, fmt.Errorf("parse base url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Link{}, fmt.Errorf("base url %q is not absolute", baseURL)
	}

	return Link{Token: tok, URL: u.JoinPath("confirm", tok).String()}, nil
}

func (g *Generator) newToken() (string, error) {
	r := g.random
	if r == nil {
		r = rand.Reader
	}
	max := new(big.Int).Lsh(big.NewInt(1), Bits)
	n, err := rand.Int(r, max)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return n.Text(radix), nil
}
