package inmem

import (
	"context"
	"errors"
	"time"

	consul "github.com/hashicorp/consul/api"
)

// Client is the store of live token UUIDs. A token whose UUID is absent has
// expired or was revoked by a sign-out.
type Client interface {
	Get(ctx context.Context, key string) error
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type client struct {
	consul *consul.Client
}

// NewClient keeps tokens in the consul KV store. Consul KV has no per-key
// expiry, so ttl is ignored and keys live until they are deleted.
func NewClient(c *consul.Client) Client {
	return &client{c}
}

const keyPrefix = "taskhaven/tokens/"

func (c *client) Get(ctx context.Context, key string) error {
	kv, _, err := c.consul.KV().Get(keyPrefix+key, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return err
	}

	if kv == nil {
		return ErrKeyNotFound
	}

	return nil
}

func (c *client) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	p := &consul.KVPair{Key: keyPrefix + key, Value: value}
	_, err := c.consul.KV().Put(p, (&consul.WriteOptions{}).WithContext(ctx))

	return err
}

func (c *client) Delete(ctx context.Context, key string) error {
	_, err := c.consul.KV().Delete(keyPrefix+key, (&consul.WriteOptions{}).WithContext(ctx))

	return err
}

var ErrKeyNotFound = errors.New("key not found")
