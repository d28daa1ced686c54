// Package drandlock adapts the drand timelock encryption network to the
// commit module's needs: a payload and a block delay in, a ciphertext
// decryptable only once the corresponding drand round is published out.
// The cryptographic construction itself lives entirely in the tlock
// library.
package drandlock

import (
	"bytes"
	"context"
	"time"

	"github.com/drand/tlock"
	"github.com/drand/tlock/networks/http"
	"github.com/rotisserie/eris"

	"github.com/arbiter-labs/verdict-cli/internal/config"
)

// Client encrypts payloads against a drand network.
type Client struct {
	network         *http.Network
	secondsPerBlock int
}

// New connects to the configured drand network.
func New(cfg config.DrandConfig) (*Client, error) {
	network, err := http.NewNetwork(cfg.URL, cfg.ChainHash)
	if err != nil {
		return nil, eris.Wrapf(err, "drandlock: network %s", cfg.URL)
	}
	secs := cfg.SecondsPerBlock
	if secs <= 0 {
		secs = 12
	}
	return &Client{network: network, secondsPerBlock: secs}, nil
}

// Encrypt produces a ciphertext decryptable once the drand round closest
// to the reveal height's expected wall-clock time has been published. The
// chain height → time mapping is an estimate from the configured block
// interval; drand rounds are the actual decryption gate.
func (c *Client) Encrypt(ctx context.Context, payload []byte, delayBlocks uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "drandlock: encrypt")
	}

	revealAt := time.Now().Add(BlockDelayDuration(delayBlocks, c.secondsPerBlock))
	round := c.network.RoundNumber(revealAt)

	var out bytes.Buffer
	if err := tlock.New(c.network).Encrypt(&out, bytes.NewReader(payload), round); err != nil {
		return nil, eris.Wrapf(err, "drandlock: encrypt for round %d", round)
	}
	return out.Bytes(), nil
}

// BlockDelayDuration converts a block-count delay into its expected
// wall-clock duration.
func BlockDelayDuration(delayBlocks uint64, secondsPerBlock int) time.Duration {
	return time.Duration(delayBlocks) * time.Duration(secondsPerBlock) * time.Second
}
