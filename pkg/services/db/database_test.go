package db

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicaSpecs(t *testing.T) {
	specs, err := parseReplicaSpecs("libsql://a.turso.io|3, libsql://b.turso.io")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "libsql://a.turso.io", specs[0].url)
	assert.Equal(t, 3, specs[0].weight)
	assert.Equal(t, "libsql://b.turso.io", specs[1].url)
	assert.Equal(t, 1, specs[1].weight)

	specs, err = parseReplicaSpecs("")
	require.NoError(t, err)
	assert.Empty(t, specs)

	_, err = parseReplicaSpecs("libsql://a.turso.io|zero")
	assert.Error(t, err)

	_, err = parseReplicaSpecs("libsql://a.turso.io|0")
	assert.Error(t, err)
}

func TestReadFallsBackToPrimary(t *testing.T) {
	resetReplicas()
	primary, _, err := sqlmock.New()
	require.NoError(t, err)
	defer primary.Close()
	D = primary

	assert.Same(t, primary, Read())
}

func TestReadWeightedRoundRobin(t *testing.T) {
	resetReplicas()
	defer resetReplicas()

	a, _, err := sqlmock.New()
	require.NoError(t, err)
	defer a.Close()
	b, _, err := sqlmock.New()
	require.NoError(t, err)
	defer b.Close()

	addReplica(a, 3)
	addReplica(b, 1)

	counts := make(map[any]int)
	for i := 0; i < 40; i++ {
		counts[Read()]++
	}
	assert.Equal(t, 30, counts[a], "replica with weight 3 should take 3/4 of reads")
	assert.Equal(t, 10, counts[b], "replica with weight 1 should take 1/4 of reads")
}

func TestReadSmoothDistribution(t *testing.T) {
	resetReplicas()
	defer resetReplicas()

	a, _, err := sqlmock.New()
	require.NoError(t, err)
	defer a.Close()
	b, _, err := sqlmock.New()
	require.NoError(t, err)
	defer b.Close()

	addReplica(a, 2)
	addReplica(b, 1)

	// Smooth weighted round-robin interleaves rather than bursting:
	// a, b, a repeating for weights 2:1.
	got := []any{Read(), Read(), Read(), Read(), Read(), Read()}
	want := []any{a, b, a, a, b, a}
	assert.Equal(t, want, got)
}
