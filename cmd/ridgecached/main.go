// Command ridgecached runs a single cache peer: it serves the wire
// protocol for inbound peer requests, optionally discovers its siblings
// via etcd, and exposes Prometheus metrics and a tiny demo origin store,
// generalizing the teacher's single-process main.go color-lookup example
// into a runnable multi-peer daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ridgecache/ridgecache"
	"github.com/ridgecache/ridgecache/internal/diskcache"
	"github.com/ridgecache/ridgecache/metrics"
)

func main() {
	var (
		selfAddr   = flag.String("self", "127.0.0.1:8080", "this peer's host:port")
		peerAddrs  = flag.String("peers", "", "comma-separated host:port of other peers (ignored if -etcd is set)")
		etcdAddrs  = flag.String("etcd", "", "comma-separated etcd endpoints for dynamic peer discovery")
		groupName  = flag.String("group", "demo", "cache group name")
		memBytes   = flag.Int64("mem-bytes", 64<<20, "in-memory cache capacity in bytes (0 = unbounded)")
		diskEntries = flag.Int("disk-entries", 0, "idle disk cache capacity in entry count (0 disables disk tier)")
		diskDir    = flag.String("disk-dir", "", "directory for disk cache temp/data files (required if -disk-entries > 0)")
		maxRetry   = flag.Int("max-retry", 3, "replicas to try before falling back to local origin load")
	)
	flag.Parse()

	logger := mycache.NewLogrusLogger(nil)
	self := parseEndpoint(*selfAddr)

	collector := metrics.NewCollector()

	cache, err := buildCache(*memBytes, *diskEntries, *diskDir)
	if err != nil {
		log.Fatalf("ridgecached: building local cache: %v", err)
	}

	getter := mycache.GetterFunc(demoOrigin)

	group := mycache.NewGroup(mycache.DefaultRegistry, *groupName, self, cache, getter, mycache.GroupOptions{
		MaxRetry:  *maxRetry,
		Logger:    logger,
		StatsSink: collector.ForGroup(*groupName),
	})

	pool := mycache.NewPeerPool(self, mycache.DefaultRegistry, mycache.PeerPoolOptions{Logger: logger})
	picker := pool.GetPicker(*groupName)
	group.RegisterPeers(picker)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *etcdAddrs != "":
		disc, err := mycache.NewDiscovery(strings.Split(*etcdAddrs, ","), "/ridgecache/"+*groupName, logger)
		if err != nil {
			log.Fatalf("ridgecached: connecting to etcd: %v", err)
		}
		defer disc.Close()
		go func() {
			if err := disc.Register(ctx, self); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Printf("etcd registration ended: %v", err)
			}
		}()
		go func() {
			if err := disc.Watch(ctx, picker); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Printf("etcd watch ended: %v", err)
			}
		}()
	case *peerAddrs != "":
		var endpoints []mycache.PeerEndpoint
		for _, addr := range strings.Split(*peerAddrs, ",") {
			endpoints = append(endpoints, parseEndpoint(strings.TrimSpace(addr)))
		}
		picker.Set(endpoints...)
	}

	mux := http.NewServeMux()
	mux.Handle("/Get", mycache.NewServer(pool))
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info().StringField("addr", self.String()).Printf("ridgecached listening")
	server := &http.Server{Addr: self.String(), Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("ridgecached: %v", err)
	}
}

func buildCache(memBytes int64, diskEntries int, diskDir string) (mycache.LocalCache, error) {
	if diskEntries <= 0 {
		return mycache.NewMemoryCache(memBytes), nil
	}
	return mycache.NewTieredCache(memBytes, diskEntries, diskDir, diskcache.OSFileSystem{})
}

func parseEndpoint(addr string) mycache.PeerEndpoint {
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		log.Fatalf("ridgecached: invalid endpoint %q, want host:port", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("ridgecached: invalid port in %q: %v", addr, err)
	}
	return mycache.NewPeerEndpoint(host, port)
}

// demoStore backs the sample origin loader with a handful of static
// keys, mirroring the teacher's color-lookup example.
var demoStore = map[string][]byte{
	"red":   []byte("#FF0000"),
	"green": []byte("#00FF00"),
	"blue":  []byte("#0000FF"),
}

var errDemoKeyNotFound = errors.New("ridgecached: key not found in demo store")

func demoOrigin(ctx context.Context, key string, dest mycache.Sink, cc *mycache.CacheControl) error {
	v, ok := demoStore[key]
	if !ok {
		return errDemoKeyNotFound
	}
	return dest.SetBytes(v)
}
