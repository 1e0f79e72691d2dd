package mycache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultLeaseTTL = 10 * time.Second

// Discovery publishes this process's endpoint to etcd under a shared
// key prefix and watches that prefix to keep a PeerPicker's endpoint
// list current, replacing the teacher's registry package (which bound
// the same etcd primitives to a gRPC naming resolver spec.md §4.11
// doesn't use).
type Discovery struct {
	client *clientv3.Client
	prefix string
	logger Logger
}

// NewDiscovery dials etcd at the given endpoints.
func NewDiscovery(etcdEndpoints []string, prefix string, logger Logger) (*Discovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("mycache: dial etcd: %w", err)
	}
	return &Discovery{client: cli, prefix: strings.TrimSuffix(prefix, "/"), logger: defaultLogger(logger)}, nil
}

// Close releases the underlying etcd client.
func (d *Discovery) Close() error { return d.client.Close() }

func (d *Discovery) key(ep PeerEndpoint) string {
	return d.prefix + "/" + ep.String()
}

// Register publishes self under a lease kept alive for as long as ctx
// is live, deregistering automatically (via lease expiry) on crash and
// explicitly (via Revoke) on graceful shutdown. It blocks until ctx is
// cancelled or the lease is irrecoverably lost, so callers run it in
// its own goroutine.
func (d *Discovery) Register(ctx context.Context, self PeerEndpoint) error {
	lease, err := d.client.Grant(ctx, int64(defaultLeaseTTL.Seconds()))
	if err != nil {
		return fmt.Errorf("mycache: grant lease: %w", err)
	}
	if _, err := d.client.Put(ctx, d.key(self), self.String(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("mycache: put endpoint: %w", err)
	}

	keepAlive, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("mycache: keepalive: %w", err)
	}
	d.logger.Info().StringField("endpoint", self.String()).Printf("registered with etcd under %s", d.prefix)

	for {
		select {
		case <-ctx.Done():
			revokeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			d.client.Revoke(revokeCtx, lease.ID)
			return ctx.Err()
		case _, ok := <-keepAlive:
			if !ok {
				return fmt.Errorf("mycache: etcd lease %d expired", lease.ID)
			}
		}
	}
}

// Watch seeds picker with the endpoints currently registered under the
// prefix, then applies every subsequent put/delete event until ctx is
// cancelled. It blocks, so callers run it in its own goroutine.
func (d *Discovery) Watch(ctx context.Context, picker *PeerPicker) error {
	resp, err := d.client.Get(ctx, d.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("mycache: initial endpoint list: %w", err)
	}
	endpoints := make([]PeerEndpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if ep, ok := d.parseKey(string(kv.Key)); ok {
			endpoints = append(endpoints, ep)
		}
	}
	picker.Set(endpoints...)

	watch := d.client.Watch(ctx, d.prefix+"/", clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	for wresp := range watch {
		if err := wresp.Err(); err != nil {
			return fmt.Errorf("mycache: watch prefix %s: %w", d.prefix, err)
		}
		for _, ev := range wresp.Events {
			// A delete event carries only the key, not the value, so the
			// endpoint must come from the key suffix rather than Kv.Value
			// (which is only populated on put).
			ep, ok := d.parseKey(string(ev.Kv.Key))
			if !ok {
				continue
			}
			switch ev.Type {
			case clientv3.EventTypePut:
				picker.Add(ep)
			case clientv3.EventTypeDelete:
				picker.remove(ep)
			}
		}
	}
	return ctx.Err()
}

// parseKey extracts the PeerEndpoint encoded in an etcd key of the form
// "<prefix>/<host>:<port>", the same layout Discovery.key builds.
func (d *Discovery) parseKey(key string) (PeerEndpoint, bool) {
	return parsePeerEndpoint(strings.TrimPrefix(key, d.prefix+"/"))
}

func parsePeerEndpoint(s string) (PeerEndpoint, bool) {
	host, portStr, found := strings.Cut(s, ":")
	if !found {
		return PeerEndpoint{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return PeerEndpoint{}, false
	}
	return NewPeerEndpoint(host, port), true
}
