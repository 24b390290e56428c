package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/models"
)

func TestSweeperDropsOldOrphans(t *testing.T) {
	graph := newMemGraph()
	ctx := context.Background()
	require.NoError(t, graph.CreateNamespace(ctx, "lab"))
	require.NoError(t, graph.CreateNamespace(ctx, trashName("op1", "old")))
	require.NoError(t, graph.WriteCollection(ctx, "lab", "people", models.TableKindNode, nil))
	require.NoError(t, graph.WriteCollection(ctx, "lab", stagingName("op2", "people"), models.TableKindNode, nil))
	require.NoError(t, graph.WriteCollection(ctx, "lab", trashName("op3", "knows"), models.TableKindEdge, nil))

	sweeper := NewSweeper(graph, time.Hour)

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh objects may belong to running operations")

	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"people"}, graph.collections("lab"))
	namespaces, _ := graph.ListNamespaces(ctx)
	require.Len(t, namespaces, 1)
	assert.Equal(t, "lab", namespaces[0].Name)
}
