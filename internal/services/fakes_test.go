package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"multinet/internal/models"
	"multinet/internal/repositories"
)

var errInjected = errors.New("injected failure")

// failures makes named methods fail. times == 0 fails forever. Hooks run
// once, on the next call of their method, before it does any work.
type failures struct {
	mu    sync.Mutex
	rules map[string]*failure
	hooks map[string]func()
	calls []string
}

type failure struct {
	err   error
	times int
}

func (f *failures) failOn(method string, times int) {
	f.failWith(method, errInjected, times)
}

func (f *failures) failWith(method string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rules == nil {
		f.rules = make(map[string]*failure)
	}
	f.rules[method] = &failure{err: err, times: times}
}

func (f *failures) onCall(method string, hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooks == nil {
		f.hooks = make(map[string]func())
	}
	f.hooks[method] = hook
}

func (f *failures) hit(method string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	hook := f.hooks[method]
	delete(f.hooks, method)
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[method]
	if !ok {
		return nil
	}
	if rule.times > 0 {
		rule.times--
		if rule.times == 0 {
			delete(f.rules, method)
		}
	}
	return rule.err
}

func (f *failures) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memMeta struct {
	failures
	mu         sync.Mutex
	workspaces map[uuid.UUID]models.Workspace
	tables     map[uuid.UUID]models.Table
	graphs     map[uuid.UUID]models.Graph
}

func newMemMeta() *memMeta {
	return &memMeta{
		workspaces: make(map[uuid.UUID]models.Workspace),
		tables:     make(map[uuid.UUID]models.Table),
		graphs:     make(map[uuid.UUID]models.Graph),
	}
}

func (m *memMeta) CreateWorkspace(_ context.Context, w *models.Workspace) error {
	if err := m.hit("CreateWorkspace"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.workspaces {
		if existing.Name == w.Name {
			return repositories.ErrDuplicate
		}
	}
	w.Prepare()
	m.workspaces[w.ID] = *w
	return nil
}

func (m *memMeta) GetWorkspace(_ context.Context, name string) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workspaces {
		if w.Name == name {
			return &w, nil
		}
	}
	return nil, nil
}

func (m *memMeta) GetWorkspaceByID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *memMeta) ListWorkspaces(_ context.Context) ([]models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := lo.Values(m.workspaces)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memMeta) RenameWorkspace(_ context.Context, id uuid.UUID, name string) error {
	if err := m.hit("RenameWorkspace"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[id]
	if !ok {
		return repositories.ErrNotFound
	}
	w.Name = name
	m.workspaces[id] = w
	return nil
}

func (m *memMeta) DeleteWorkspace(_ context.Context, id uuid.UUID) error {
	if err := m.hit("DeleteWorkspace"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workspaces, id)
	for tid, t := range m.tables {
		if t.WorkspaceID == id {
			delete(m.tables, tid)
		}
	}
	for gid, g := range m.graphs {
		if g.WorkspaceID == id {
			delete(m.graphs, gid)
		}
	}
	return nil
}

func (m *memMeta) SaveTable(_ context.Context, t *models.Table) error {
	if err := m.hit("SaveTable"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tables {
		if existing.WorkspaceID == t.WorkspaceID && existing.Name == t.Name {
			t.ID, t.CreatedAt = existing.ID, existing.CreatedAt
		}
	}
	t.Prepare()
	m.tables[t.ID] = *t
	return nil
}

func (m *memMeta) RestoreTable(_ context.Context, t *models.Table) error {
	if err := m.hit("RestoreTable"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.ID] = *t
	return nil
}

func (m *memMeta) GetTable(_ context.Context, workspaceID uuid.UUID, name string) (*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.WorkspaceID == workspaceID && t.Name == name {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memMeta) ListTables(_ context.Context, workspaceID uuid.UUID) ([]models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := lo.Filter(lo.Values(m.tables), func(t models.Table, _ int) bool { return t.WorkspaceID == workspaceID })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memMeta) DeleteTable(_ context.Context, id uuid.UUID) error {
	if err := m.hit("DeleteTable"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tables[id]
	if len(m.referencing(t)) > 0 {
		return repositories.ErrReferenced
	}
	delete(m.tables, id)
	return nil
}

func (m *memMeta) referencing(t models.Table) []string {
	var names []string
	for _, g := range m.graphs {
		if g.WorkspaceID == t.WorkspaceID && (g.EdgeTable == t.Name || lo.Contains(g.NodeTables, t.Name)) {
			names = append(names, g.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *memMeta) GraphsReferencing(_ context.Context, tableID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.referencing(m.tables[tableID]), nil
}

func (m *memMeta) CreateGraph(_ context.Context, g *models.Graph) error {
	if err := m.hit("CreateGraph"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.graphs {
		if existing.WorkspaceID == g.WorkspaceID && existing.Name == g.Name {
			return repositories.ErrDuplicate
		}
	}
	g.Prepare()
	m.graphs[g.ID] = *g
	return nil
}

func (m *memMeta) GetGraph(_ context.Context, workspaceID uuid.UUID, name string) (*models.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.graphs {
		if g.WorkspaceID == workspaceID && g.Name == name {
			return &g, nil
		}
	}
	return nil, nil
}

func (m *memMeta) ListGraphs(_ context.Context, workspaceID uuid.UUID) ([]models.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(lo.Values(m.graphs), func(g models.Graph, _ int) bool { return g.WorkspaceID == workspaceID }), nil
}

func (m *memMeta) DeleteGraph(_ context.Context, id uuid.UUID) error {
	if err := m.hit("DeleteGraph"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.graphs, id)
	return nil
}

type memCollection struct {
	kind      models.TableKind
	docs      []models.Document
	createdAt time.Time
}

type memNamespace struct {
	collections map[string]*memCollection
	graphs      map[string]models.GraphDefinition
	createdAt   time.Time
}

type memGraph struct {
	failures
	mu           sync.Mutex
	namespaces   map[string]*memNamespace
	promoteDelay time.Duration
}

func newMemGraph() *memGraph {
	return &memGraph{namespaces: make(map[string]*memNamespace)}
}

func (g *memGraph) ns(name string) (*memNamespace, error) {
	n, ok := g.namespaces[name]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return n, nil
}

func (g *memGraph) CreateNamespace(_ context.Context, name string) error {
	if err := g.hit("CreateNamespace"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.namespaces[name]; ok {
		return repositories.ErrNamespaceExists
	}
	g.namespaces[name] = &memNamespace{
		collections: make(map[string]*memCollection),
		graphs:      make(map[string]models.GraphDefinition),
		createdAt:   time.Now(),
	}
	return nil
}

func (g *memGraph) NamespaceExists(_ context.Context, name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.namespaces[name]
	return ok, nil
}

func (g *memGraph) RenameNamespace(_ context.Context, from, to string) error {
	if err := g.hit("RenameNamespace"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.ns(from)
	if err != nil {
		return err
	}
	if _, ok := g.namespaces[to]; ok {
		return repositories.ErrNamespaceExists
	}
	delete(g.namespaces, from)
	g.namespaces[to] = n
	return nil
}

func (g *memGraph) DropNamespace(_ context.Context, name string) error {
	if err := g.hit("DropNamespace"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.namespaces, name)
	return nil
}

func (g *memGraph) ListNamespaces(_ context.Context) ([]models.CollectionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.CollectionInfo
	for name, n := range g.namespaces {
		out = append(out, models.CollectionInfo{Name: name, CreatedAt: n.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *memGraph) WriteCollection(_ context.Context, namespace, collection string, kind models.TableKind, docs []models.Document) error {
	if err := g.hit("WriteCollection"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.ns(namespace)
	if err != nil {
		return err
	}
	if _, ok := n.collections[collection]; ok {
		return repositories.ErrCollectionExists
	}
	n.collections[collection] = &memCollection{kind: kind, docs: append([]models.Document(nil), docs...), createdAt: time.Now()}
	return nil
}

func (g *memGraph) RenameCollection(_ context.Context, namespace, from, to string) error {
	if err := g.hit("RenameCollection"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.ns(namespace)
	if err != nil {
		return err
	}
	c, ok := n.collections[from]
	if !ok {
		return repositories.ErrNotFound
	}
	delete(n.collections, from)
	n.collections[to] = c
	return nil
}

func (g *memGraph) DropCollection(_ context.Context, namespace, collection string) error {
	if err := g.hit("DropCollection"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.namespaces[namespace]; ok {
		delete(n.collections, collection)
	}
	return nil
}

func (g *memGraph) ListCollections(_ context.Context, namespace string) ([]models.CollectionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.ns(namespace)
	if err != nil {
		return nil, err
	}
	var out []models.CollectionInfo
	for name, c := range n.collections {
		out = append(out, models.CollectionInfo{Name: name, Kind: c.kind, CreatedAt: c.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *memGraph) Promote(_ context.Context, namespace string, swaps []models.CollectionSwap) error {
	if g.promoteDelay > 0 {
		time.Sleep(g.promoteDelay)
	}
	if err := g.hit("Promote"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.ns(namespace)
	if err != nil {
		return err
	}
	for _, s := range swaps {
		if _, ok := n.collections[s.Staging]; !ok {
			return repositories.ErrNotFound
		}
	}
	for _, s := range swaps {
		n.collections[s.Live] = n.collections[s.Staging]
		delete(n.collections, s.Staging)
	}
	return nil
}

func (g *memGraph) CreateGraph(_ context.Context, namespace string, def models.GraphDefinition) error {
	if err := g.hit("CreateGraph"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.ns(namespace)
	if err != nil {
		return err
	}
	if _, ok := n.graphs[def.Name]; ok {
		return repositories.ErrGraphExists
	}
	n.graphs[def.Name] = def
	return nil
}

func (g *memGraph) DropGraph(_ context.Context, namespace, name string) error {
	if err := g.hit("DropGraph"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.namespaces[namespace]; ok {
		delete(n.graphs, name)
	}
	return nil
}

func (g *memGraph) GetGraph(_ context.Context, namespace, name string) (*models.GraphDefinition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.namespaces[namespace]
	if !ok {
		return nil, nil
	}
	def, ok := n.graphs[name]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

func (g *memGraph) ExistingKeys(_ context.Context, namespace, collection string, keys []string) (map[string]struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]struct{})
	n, ok := g.namespaces[namespace]
	if !ok {
		return out, nil
	}
	c, ok := n.collections[collection]
	if !ok {
		return out, nil
	}
	for _, d := range c.docs {
		if lo.Contains(keys, d.Key) {
			out[d.Key] = struct{}{}
		}
	}
	return out, nil
}

func (g *memGraph) ReadDocuments(_ context.Context, namespace, collection string, offset, limit int) ([]models.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.namespaces[namespace]
	if !ok {
		return nil, nil
	}
	c, ok := n.collections[collection]
	if !ok || offset >= len(c.docs) {
		return nil, nil
	}
	end := min(offset+limit, len(c.docs))
	return append([]models.Document(nil), c.docs[offset:end]...), nil
}

func (g *memGraph) CountDocuments(_ context.Context, namespace, collection string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.namespaces[namespace]
	if !ok {
		return 0, nil
	}
	c, ok := n.collections[collection]
	if !ok {
		return 0, nil
	}
	return int64(len(c.docs)), nil
}

// collections returns the names in namespace, or nil if it does not exist.
func (g *memGraph) collections(namespace string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.namespaces[namespace]
	if !ok {
		return nil
	}
	names := lo.Keys(n.collections)
	sort.Strings(names)
	return names
}

func (g *memGraph) docs(namespace, collection string) []models.Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.namespaces[namespace]
	if !ok {
		return nil
	}
	c, ok := n.collections[collection]
	if !ok {
		return nil
	}
	return c.docs
}

func (g *memGraph) appendDocs(namespace, collection string, docs ...models.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.namespaces[namespace].collections[collection]
	c.docs = append(c.docs, docs...)
}

// hookLocker runs before once ahead of the first Lock.
type hookLocker struct {
	Locker
	once   sync.Once
	before func()
}

func (l *hookLocker) Lock(ctx context.Context, reqs ...LockRequest) (func(), error) {
	l.once.Do(l.before)
	return l.Locker.Lock(ctx, reqs...)
}

func hasPrefixed(names []string, prefix string) bool {
	return lo.SomeBy(names, func(n string) bool { return strings.HasPrefix(n, prefix) })
}
