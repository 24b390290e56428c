package repositories

import "github.com/jackc/pgx/v5/pgxpool"

// MetadataStore bundles the relational repositories the coordinator writes
// through.
type MetadataStore struct {
	*WorkspaceRepository
	*TableRepository
	*GraphRepository
}

func NewMetadataStore(pool *pgxpool.Pool) *MetadataStore {
	return &MetadataStore{
		WorkspaceRepository: NewWorkspaceRepository(pool),
		TableRepository:     NewTableRepository(pool),
		GraphRepository:     NewGraphRepository(pool),
	}
}
