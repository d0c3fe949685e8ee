package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"shortcast/internal/client"
	"shortcast/internal/config"
	"shortcast/internal/queue"
)

type commandContext struct {
	configFlag *string
	addrFlag   *string
	keyFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, addrFlag, keyFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		addrFlag:   addrFlag,
		keyFlag:    keyFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) address(cfg *config.Config) string {
	if c.addrFlag != nil {
		if addr := strings.TrimSpace(*c.addrFlag); addr != "" {
			return addr
		}
	}
	if cfg == nil {
		return ""
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (c *commandContext) apiKey(cfg *config.Config) string {
	if c.keyFlag != nil {
		if key := strings.TrimSpace(*c.keyFlag); key != "" {
			return key
		}
	}
	if key := strings.TrimSpace(os.Getenv("SHORTCAST_API_KEY")); key != "" {
		return key
	}
	if cfg != nil && len(cfg.API.Keys) > 0 {
		return cfg.API.Keys[0].Key
	}
	return ""
}

func (c *commandContext) newClient() (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	key := c.apiKey(cfg)
	if key == "" {
		return nil, errors.New("no API key: pass --api-key, set SHORTCAST_API_KEY, or add [[api.keys]] to the config")
	}
	return client.New(c.address(cfg), key)
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	return wrapDialError(fn(cl), cl.BaseURL())
}

func (c *commandContext) withStore(ctx context.Context, fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("queue store unavailable: %w", err)
	}
	return fn(cfg, store)
}

func wrapDialError(err error, addr string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `shortcast daemon`", addr)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
