// Package kv hands shared state between processes through NATS JetStream
// key/value buckets: the live position snapshot published by the feed worker
// and the manually maintained callsign translation table.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"flight_matcher/internal/position"
)

const (
	snapshotKey     = "positions"
	translationsKey = "translations"
)

// Client wraps one JetStream key/value bucket.
type Client struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// Connect connects to the NATS server and binds the bucket, creating it on
// first use.
func Connect(url, bucket string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("flight_matcher"),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind bucket %s: %w", bucket, err)
	}

	return &Client{nc: nc, kv: kv}, nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.nc.Close()
}

// PublishSnapshot replaces the stored position snapshot. Snapshots are
// published whole; readers never see a partially updated cycle.
func (c *Client) PublishSnapshot(snap *position.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := c.kv.Put(snapshotKey, data); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the last published position snapshot, or nil if none has
// been published yet.
func (c *Client) Snapshot() (*position.Snapshot, error) {
	entry, err := c.kv.Get(snapshotKey)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap position.Snapshot
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Translations returns the manual callsign translation table: assumed
// callsign (operator ICAO + flight number) to the callsign actually flown.
// An empty map when none is maintained yet.
func (c *Client) Translations() (map[string]string, error) {
	entry, err := c.kv.Get(translationsKey)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get translations: %w", err)
	}
	table := make(map[string]string)
	if err := json.Unmarshal(entry.Value(), &table); err != nil {
		return nil, fmt.Errorf("unmarshal translations: %w", err)
	}
	return table, nil
}

// PutTranslation records that the flight assumed to fly under one callsign
// is actually observed under another.
func (c *Client) PutTranslation(assumed, actual string) error {
	table, err := c.Translations()
	if err != nil {
		return err
	}
	table[assumed] = actual
	return c.writeTranslations(table)
}

// DeleteTranslation removes a manual override.
func (c *Client) DeleteTranslation(assumed string) error {
	table, err := c.Translations()
	if err != nil {
		return err
	}
	delete(table, assumed)
	return c.writeTranslations(table)
}

func (c *Client) writeTranslations(table map[string]string) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshal translations: %w", err)
	}
	if _, err := c.kv.Put(translationsKey, data); err != nil {
		return fmt.Errorf("put translations: %w", err)
	}
	return nil
}
