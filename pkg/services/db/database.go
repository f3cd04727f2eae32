package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/tursodatabase/go-libsql"
)

var (
	// D is the primary database. All writes go here.
	D *sql.DB

	replicas    []*replica
	replicaMu   sync.Mutex
	totalWeight int
)

type replica struct {
	db            *sql.DB
	weight        int
	currentWeight int
}

func Setup(ctx context.Context, shutdown *sync.WaitGroup) error {
	shutdown.Add(1)
	dir, err := os.MkdirTemp("", "libsql-*")
	if err != nil {
		return fmt.Errorf("error creating temporary directory: %w", err)
	}
	primary, closers, err := connect(dir, "primary.db", envs.DB_URL_LUMEN)
	if err != nil {
		return err
	}
	D = primary
	slog.Debug("db connected", "url", envs.DB_URL_LUMEN)

	replicaSpecs, err := parseReplicaSpecs(envs.DB_READ_REPLICAS)
	if err != nil {
		return err
	}
	for i, spec := range replicaSpecs {
		rdb, rclosers, err := connect(dir, fmt.Sprintf("replica-%d.db", i), spec.url)
		if err != nil {
			return err
		}
		closers = append(closers, rclosers...)
		addReplica(rdb, spec.weight)
		slog.Debug("read replica connected", "url", spec.url, "weight", spec.weight)
	}

	go func() {
		<-ctx.Done()
		slog.Debug("shutting down libsql db")
		for _, c := range closers {
			c()
		}
		os.RemoveAll(dir)
		shutdown.Done()
	}()
	return nil
}

func connect(dir, name, url string) (*sql.DB, []func(), error) {
	dbPath := filepath.Join(dir, name)
	connector, err := libsql.NewEmbeddedReplicaConnector(dbPath, url,
		libsql.WithAuthToken(secr.TURSO_AUTH_TOKEN.String()),
		libsql.WithEncryption(secr.LIBSQL_ENCRYPTION_KEY.String()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating connector for %s: %w", url, err)
	}
	d := sql.OpenDB(connector)
	return d, []func(){func() { d.Close() }, func() { connector.Close() }}, nil
}

type replicaSpec struct {
	url    string
	weight int
}

// parseReplicaSpecs parses the DB_READ_REPLICAS env format:
// a comma-separated list of url|weight pairs. Weight defaults to 1.
func parseReplicaSpecs(s string) ([]replicaSpec, error) {
	if s == "" {
		return nil, nil
	}
	var specs []replicaSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		url, weightStr, found := strings.Cut(part, "|")
		weight := 1
		if found {
			w, err := strconv.Atoi(weightStr)
			if err != nil || w < 1 {
				return nil, fmt.Errorf("invalid replica weight in %q", part)
			}
			weight = w
		}
		specs = append(specs, replicaSpec{url: url, weight: weight})
	}
	return specs, nil
}

func addReplica(d *sql.DB, weight int) {
	replicaMu.Lock()
	defer replicaMu.Unlock()
	replicas = append(replicas, &replica{db: d, weight: weight})
	totalWeight += weight
}

// Read returns the connection to use for a read-only query: the next read
// replica by smooth weighted round-robin, or the primary when no replicas
// are configured.
func Read() *sql.DB {
	replicaMu.Lock()
	defer replicaMu.Unlock()
	if len(replicas) == 0 {
		return D
	}
	var best *replica
	for _, r := range replicas {
		r.currentWeight += r.weight
		if best == nil || r.currentWeight > best.currentWeight {
			best = r
		}
	}
	best.currentWeight -= totalWeight
	return best.db
}

// resetReplicas clears replica state. Test hook.
func resetReplicas() {
	replicaMu.Lock()
	defer replicaMu.Unlock()
	replicas = nil
	totalWeight = 0
}
