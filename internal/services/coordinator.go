package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"multinet/internal/apperrors"
	"multinet/internal/ingest"
	"multinet/internal/metrics"
	"multinet/internal/models"
	"multinet/internal/repositories"
	"multinet/pkg/logger"
)

const (
	stagingPrefix = repositories.StagingPrefix
	trashPrefix   = repositories.TrashPrefix
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]*$`)

func validateName(what, name string) error {
	if len(name) == 0 || len(name) > 128 || !namePattern.MatchString(name) {
		return apperrors.Invalid(fmt.Sprintf("invalid %s name %q", what, name))
	}
	return nil
}

func stagingName(opID, name string) string { return stagingPrefix + opID + "_" + name }
func trashName(opID, name string) string   { return trashPrefix + opID + "_" + name }

type step struct {
	name string
	do   func(ctx context.Context) error
	// undo is nil when the step needs no compensation.
	undo func(ctx context.Context) error
}

type plan struct {
	steps []step
	// finalizers run after every step succeeded. Failures are logged and
	// left to the sweeper.
	finalizers []step
	result     *Result
	// collect fills result once the plan has committed.
	collect func(*Result)
}

// Coordinator runs every mutation that touches both stores as a plan of
// compensable steps, holding the entity locks for the whole plan.
type Coordinator struct {
	meta        MetadataStore
	graphs      GraphStore
	locker      Locker
	log         *zap.Logger
	undoBackOff func() backoff.BackOff
	newOpID     func() string
}

type CoordinatorOption func(*Coordinator)

// WithUndoBackOff sets the retry policy for compensating actions.
func WithUndoBackOff(f func() backoff.BackOff) CoordinatorOption {
	return func(c *Coordinator) { c.undoBackOff = f }
}

func NewCoordinator(meta MetadataStore, graphs GraphStore, locker Locker, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		meta:   meta,
		graphs: graphs,
		locker: locker,
		log:    logger.Get().Named("coordinator"),
		undoBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		},
		newOpID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type execution struct {
	cancelled ingest.CancelCheck
}

type ExecuteOption func(*execution)

// WithCancelCheck makes Execute poll check before every step.
func WithCancelCheck(check ingest.CancelCheck) ExecuteOption {
	return func(e *execution) { e.cancelled = check }
}

func (e *execution) check(ctx context.Context, op string, log *zap.Logger) error {
	if ctx.Err() != nil {
		return apperrors.Cancelled(op)
	}
	if e.cancelled == nil {
		return nil
	}
	stop, err := e.cancelled(ctx)
	if err != nil {
		log.Warn("Cancellation check failed, continuing", zap.String("operation", op), zap.Error(err))
		return nil
	}
	if stop {
		return apperrors.Cancelled(op)
	}
	return nil
}

// Execute runs op to completion or leaves both stores as they were.
func (c *Coordinator) Execute(ctx context.Context, op Operation, opts ...ExecuteOption) (res *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues(op.Op()).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = string(apperrors.TypeOf(err))
		}
		metrics.Operations.WithLabelValues(op.Op(), outcome).Inc()
	}()

	exec := &execution{}
	for _, opt := range opts {
		opt(exec)
	}

	prepared, err := c.prepare(ctx, op)
	if err != nil {
		return nil, err
	}
	op = prepared
	release, err := c.locker.Lock(ctx, op.Locks()...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Cancelled(op.Op())
		}
		return nil, storeError(op.Op(), "acquire locks", err)
	}
	defer release()

	if err := exec.check(ctx, op.Op(), c.log); err != nil {
		return nil, err
	}

	p, err := c.compile(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := c.run(ctx, op, p, exec); err != nil {
		return nil, err
	}
	if p.collect != nil {
		p.collect(p.result)
	}
	c.finalize(ctx, op.Op(), p.finalizers)

	c.log.Info("Operation committed",
		zap.String("operation", op.Op()),
		zap.Strings("steps", p.result.Steps),
		zap.Duration("duration", time.Since(start)))
	return p.result, nil
}

// prepare completes op with what must be known before locking. A graph
// without node tables locks the tables its edges point at.
func (c *Coordinator) prepare(ctx context.Context, op Operation) (Operation, error) {
	o, ok := op.(CreateGraph)
	if !ok || len(o.NodeTables) > 0 {
		return op, nil
	}
	ws, err := c.workspace(ctx, o.Op(), o.Workspace)
	if err != nil {
		return nil, err
	}
	if o.NodeTables, err = c.endpointTables(ctx, ws, o.EdgeTable); err != nil {
		return nil, err
	}
	o.derived = true
	return o, nil
}

func (c *Coordinator) compile(ctx context.Context, op Operation) (*plan, error) {
	switch o := op.(type) {
	case CreateWorkspace:
		return c.planCreateWorkspace(ctx, o)
	case RenameWorkspace:
		return c.planRenameWorkspace(ctx, o)
	case DeleteWorkspace:
		return c.planDeleteWorkspace(ctx, o)
	case CreateOrReplaceTable:
		table := o.Table
		return c.planPayload(ctx, o.Op(), o.Workspace, &ingest.Payload{Tables: []ingest.TablePayload{table}}, o.Overwrite)
	case DeleteTable:
		return c.planDeleteTable(ctx, o)
	case CreateGraph:
		return c.planCreateGraph(ctx, o)
	case DeleteGraph:
		return c.planDeleteGraph(ctx, o)
	case CommitPayload:
		return c.planPayload(ctx, o.Op(), o.Workspace, o.Payload, o.Overwrite)
	case AppendRows:
		return c.planAppendRows(ctx, o)
	case DeleteRows:
		return c.planDeleteRows(ctx, o)
	default:
		return nil, apperrors.Invalid(fmt.Sprintf("unsupported operation %T", op))
	}
}

func (c *Coordinator) run(ctx context.Context, operation Operation, p *plan, exec *execution) error {
	op := operation.Op()
	done := make([]step, 0, len(p.steps))
	for _, s := range p.steps {
		if err := exec.check(ctx, op, c.log); err != nil {
			if undoErrs := c.compensate(ctx, op, done); len(undoErrs) > 0 {
				return apperrors.PartialFailure(op, s.name, err, undoErrs...)
			}
			return err
		}

		if err := s.do(ctx); err != nil {
			c.log.Warn("Step failed",
				zap.String("operation", op),
				zap.String("step", s.name),
				zap.Int("completed", len(done)),
				zap.Error(err))
			if len(done) == 0 {
				return classify(op, entityOf(operation), s.name, err)
			}
			undoErrs := c.compensate(ctx, op, done)
			return apperrors.PartialFailure(op, s.name, err, undoErrs...)
		}
		done = append(done, s)
		p.result.Steps = append(p.result.Steps, s.name)
	}
	return nil
}

// compensate undoes done in reverse order. It keeps going past failures and
// returns every undo error.
func (c *Coordinator) compensate(ctx context.Context, op string, done []step) []error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		s := done[i]
		if s.undo == nil {
			continue
		}
		err := backoff.Retry(func() error { return s.undo(ctx) }, c.undoBackOff())
		if err != nil {
			metrics.Compensations.WithLabelValues(op, "failed").Inc()
			c.log.Error("Compensation failed",
				zap.String("operation", op),
				zap.String("step", s.name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("undo %q: %w", s.name, err))
			continue
		}
		metrics.Compensations.WithLabelValues(op, "ok").Inc()
		c.log.Info("Step compensated", zap.String("operation", op), zap.String("step", s.name))
	}
	return errs
}

func (c *Coordinator) finalize(ctx context.Context, op string, finalizers []step) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range finalizers {
		if err := f.do(ctx); err != nil {
			metrics.FinalizerFailures.WithLabelValues(op).Inc()
			c.log.Warn("Finalizer failed, leaving it to the sweeper",
				zap.String("operation", op),
				zap.String("finalizer", f.name),
				zap.Error(err))
		}
	}
}

// classify maps the error of a first step, where nothing needs undoing.
func classify(op, entity, stepName string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Cancelled(op)
	case errors.Is(err, repositories.ErrDuplicate),
		errors.Is(err, repositories.ErrNamespaceExists),
		errors.Is(err, repositories.ErrCollectionExists),
		errors.Is(err, repositories.ErrGraphExists):
		return apperrors.Conflict(op, entity, err.Error())
	case errors.Is(err, repositories.ErrReferenced):
		return apperrors.Conflict(op, entity, "still referenced")
	case apperrors.TypeOf(err) != "":
		return err
	}
	return storeError(op, stepName, err)
}

func storeError(op, what string, err error) error {
	e := apperrors.New(apperrors.ErrorTypeStore, what, err)
	e.Op = op
	return e
}

func (c *Coordinator) workspace(ctx context.Context, op, name string) (*models.Workspace, error) {
	ws, err := c.meta.GetWorkspace(ctx, name)
	if err != nil {
		return nil, storeError(op, "look up workspace", err)
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace " + name)
	}
	return ws, nil
}

func (c *Coordinator) planCreateWorkspace(ctx context.Context, o CreateWorkspace) (*plan, error) {
	if err := validateName("workspace", o.Name); err != nil {
		return nil, err
	}
	existing, err := c.meta.GetWorkspace(ctx, o.Name)
	if err != nil {
		return nil, storeError(o.Op(), "look up workspace", err)
	}
	if existing != nil {
		return nil, apperrors.Conflict(o.Op(), o.Name, "workspace already exists")
	}
	taken, err := c.graphs.NamespaceExists(ctx, o.Name)
	if err != nil {
		return nil, storeError(o.Op(), "look up namespace", err)
	}
	if taken {
		return nil, apperrors.Conflict(o.Op(), o.Name, "namespace already exists")
	}

	ws := &models.Workspace{Name: o.Name}
	return &plan{
		result: &Result{Operation: o.Op(), Workspace: ws},
		steps: []step{
			{
				name: "insert workspace row",
				do:   func(ctx context.Context) error { return c.meta.CreateWorkspace(ctx, ws) },
				undo: func(ctx context.Context) error { return c.meta.DeleteWorkspace(ctx, ws.ID) },
			},
			{
				name: "create namespace",
				do:   func(ctx context.Context) error { return c.graphs.CreateNamespace(ctx, o.Name) },
				undo: func(ctx context.Context) error { return c.graphs.DropNamespace(ctx, o.Name) },
			},
		},
	}, nil
}

func (c *Coordinator) planRenameWorkspace(ctx context.Context, o RenameWorkspace) (*plan, error) {
	if err := validateName("workspace", o.To); err != nil {
		return nil, err
	}
	ws, err := c.workspace(ctx, o.Op(), o.From)
	if err != nil {
		return nil, err
	}
	if o.From == o.To {
		return &plan{result: &Result{Operation: o.Op(), Workspace: ws}}, nil
	}
	taken, err := c.meta.GetWorkspace(ctx, o.To)
	if err != nil {
		return nil, storeError(o.Op(), "look up workspace", err)
	}
	if taken != nil {
		return nil, apperrors.Conflict(o.Op(), o.To, "workspace already exists")
	}

	return &plan{
		result: &Result{Operation: o.Op(), Workspace: ws},
		steps: []step{
			{
				name: "rename workspace row",
				do:   func(ctx context.Context) error { return c.meta.RenameWorkspace(ctx, ws.ID, o.To) },
				undo: func(ctx context.Context) error { return c.meta.RenameWorkspace(ctx, ws.ID, o.From) },
			},
			{
				name: "rename namespace",
				do:   func(ctx context.Context) error { return c.graphs.RenameNamespace(ctx, o.From, o.To) },
				undo: func(ctx context.Context) error { return c.graphs.RenameNamespace(ctx, o.To, o.From) },
			},
		},
		collect: func(r *Result) { r.Workspace.Name = o.To },
	}, nil
}

func (c *Coordinator) planDeleteWorkspace(ctx context.Context, o DeleteWorkspace) (*plan, error) {
	ws, err := c.workspace(ctx, o.Op(), o.Name)
	if err != nil {
		return nil, err
	}
	trash := trashName(c.newOpID(), o.Name)

	return &plan{
		result: &Result{Operation: o.Op(), Workspace: ws},
		steps: []step{
			{
				name: "move namespace to trash",
				do:   func(ctx context.Context) error { return c.graphs.RenameNamespace(ctx, o.Name, trash) },
				undo: func(ctx context.Context) error { return c.graphs.RenameNamespace(ctx, trash, o.Name) },
			},
			{
				name: "delete workspace row",
				do:   func(ctx context.Context) error { return c.meta.DeleteWorkspace(ctx, ws.ID) },
			},
		},
		finalizers: []step{{
			name: "drop trashed namespace",
			do:   func(ctx context.Context) error { return c.graphs.DropNamespace(ctx, trash) },
		}},
	}, nil
}

func (c *Coordinator) planDeleteTable(ctx context.Context, o DeleteTable) (*plan, error) {
	ws, err := c.workspace(ctx, o.Op(), o.Workspace)
	if err != nil {
		return nil, err
	}
	table, err := c.meta.GetTable(ctx, ws.ID, o.Name)
	if err != nil {
		return nil, storeError(o.Op(), "look up table", err)
	}
	if table == nil {
		return nil, apperrors.NotFound("table " + o.Name)
	}
	refs, err := c.meta.GraphsReferencing(ctx, table.ID)
	if err != nil {
		return nil, storeError(o.Op(), "look up graph references", err)
	}
	if len(refs) > 0 {
		return nil, apperrors.Conflict(o.Op(), o.Name,
			fmt.Sprintf("table is used by graphs: %s", strings.Join(refs, ", ")))
	}

	trash := trashName(c.newOpID(), o.Name)
	return &plan{
		result: &Result{Operation: o.Op(), Tables: []models.Table{*table}},
		steps: []step{
			{
				name: "move collection to trash",
				do:   func(ctx context.Context) error { return c.graphs.RenameCollection(ctx, ws.Name, o.Name, trash) },
				undo: func(ctx context.Context) error { return c.graphs.RenameCollection(ctx, ws.Name, trash, o.Name) },
			},
			{
				name: "delete table row",
				do:   func(ctx context.Context) error { return c.meta.DeleteTable(ctx, table.ID) },
			},
		},
		finalizers: []step{{
			name: "drop trashed collection",
			do:   func(ctx context.Context) error { return c.graphs.DropCollection(ctx, ws.Name, trash) },
		}},
	}, nil
}

func (c *Coordinator) planCreateGraph(ctx context.Context, o CreateGraph) (*plan, error) {
	if err := validateName("graph", o.Name); err != nil {
		return nil, err
	}
	ws, err := c.workspace(ctx, o.Op(), o.Workspace)
	if err != nil {
		return nil, err
	}
	existing, err := c.meta.GetGraph(ctx, ws.ID, o.Name)
	if err != nil {
		return nil, storeError(o.Op(), "look up graph", err)
	}
	if existing != nil {
		return nil, apperrors.Conflict(o.Op(), o.Name, "graph already exists")
	}

	nodeTables := o.NodeTables
	if o.derived {
		current, err := c.endpointTables(ctx, ws, o.EdgeTable)
		if err != nil {
			return nil, err
		}
		if !sameTables(current, nodeTables) {
			return nil, apperrors.Conflict(o.Op(), o.Name,
				fmt.Sprintf("endpoint tables of %s changed while the graph was being created", o.EdgeTable))
		}
	}
	issues, err := c.checkGraph(ctx, ws, o.Name, o.EdgeTable, nodeTables, nil)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, apperrors.Referential(
			fmt.Sprintf("%d edge endpoints do not resolve", len(issues)), issues)
	}

	graph := &models.Graph{WorkspaceID: ws.ID, Name: o.Name, EdgeTable: o.EdgeTable, NodeTables: nodeTables}
	def := models.GraphDefinition{Name: o.Name, EdgeCollection: o.EdgeTable, NodeCollections: nodeTables}
	return &plan{
		result: &Result{Operation: o.Op(), Graph: graph},
		steps: []step{
			{
				name: "insert graph row",
				do:   func(ctx context.Context) error { return c.meta.CreateGraph(ctx, graph) },
				undo: func(ctx context.Context) error { return c.meta.DeleteGraph(ctx, graph.ID) },
			},
			{
				name: "create graph definition",
				do:   func(ctx context.Context) error { return c.graphs.CreateGraph(ctx, ws.Name, def) },
				undo: func(ctx context.Context) error { return c.graphs.DropGraph(ctx, ws.Name, def.Name) },
			},
		},
	}, nil
}

func (c *Coordinator) planDeleteGraph(ctx context.Context, o DeleteGraph) (*plan, error) {
	ws, err := c.workspace(ctx, o.Op(), o.Workspace)
	if err != nil {
		return nil, err
	}
	graph, err := c.meta.GetGraph(ctx, ws.ID, o.Name)
	if err != nil {
		return nil, storeError(o.Op(), "look up graph", err)
	}
	if graph == nil {
		return nil, apperrors.NotFound("graph " + o.Name)
	}
	def, err := c.graphs.GetGraph(ctx, ws.Name, o.Name)
	if err != nil {
		return nil, storeError(o.Op(), "look up graph definition", err)
	}
	if def == nil {
		def = &models.GraphDefinition{Name: graph.Name, EdgeCollection: graph.EdgeTable, NodeCollections: graph.NodeTables}
	}

	return &plan{
		result: &Result{Operation: o.Op(), Graph: graph},
		steps: []step{
			{
				name: "drop graph definition",
				do:   func(ctx context.Context) error { return c.graphs.DropGraph(ctx, ws.Name, o.Name) },
				undo: func(ctx context.Context) error { return c.graphs.CreateGraph(ctx, ws.Name, *def) },
			},
			{
				name: "delete graph row",
				do:   func(ctx context.Context) error { return c.meta.DeleteGraph(ctx, graph.ID) },
			},
		},
	}, nil
}

type tableChange struct {
	payload  *ingest.TablePayload
	existing *models.Table
	row      *models.Table
	staging  string
}

// planPayload stages every table, writes metadata, registers the graph and
// finally promotes all staged collections in one graph-store transaction.
func (c *Coordinator) planPayload(ctx context.Context, op, workspace string, payload *ingest.Payload, overwrite bool) (*plan, error) {
	if payload == nil || len(payload.Tables) == 0 {
		return nil, apperrors.Invalid("payload has no tables")
	}
	ws, err := c.workspace(ctx, op, workspace)
	if err != nil {
		return nil, err
	}
	opID := c.newOpID()

	pending := make(map[string]*ingest.TablePayload, len(payload.Tables))
	changes := make([]*tableChange, 0, len(payload.Tables))
	var affected []string
	for i := range payload.Tables {
		tp := &payload.Tables[i]
		if err := validateName("table", tp.Name); err != nil {
			return nil, err
		}
		if !tp.Kind.Valid() {
			return nil, apperrors.Invalid(fmt.Sprintf("invalid kind %q for table %s", tp.Kind, tp.Name))
		}
		if _, dup := pending[tp.Name]; dup {
			return nil, apperrors.Invalid(fmt.Sprintf("table %s appears twice", tp.Name))
		}
		pending[tp.Name] = tp

		existing, err := c.meta.GetTable(ctx, ws.ID, tp.Name)
		if err != nil {
			return nil, storeError(op, "look up table", err)
		}
		if existing != nil {
			if !overwrite {
				return nil, apperrors.Conflict(op, tp.Name, "table already exists")
			}
			refs, err := c.meta.GraphsReferencing(ctx, existing.ID)
			if err != nil {
				return nil, storeError(op, "look up graph references", err)
			}
			if len(refs) > 0 && existing.Kind != tp.Kind {
				return nil, apperrors.Conflict(op, tp.Name,
					fmt.Sprintf("cannot change kind of a table used by graphs: %s", strings.Join(refs, ", ")))
			}
			affected = append(affected, refs...)
		}

		row := &models.Table{
			WorkspaceID: ws.ID,
			Name:        tp.Name,
			Kind:        tp.Kind,
			Columns:     tp.Columns,
			RowCount:    int64(len(tp.Documents)),
		}
		if existing != nil {
			row.ID, row.CreatedAt = existing.ID, existing.CreatedAt
		}
		changes = append(changes, &tableChange{
			payload:  tp,
			existing: existing,
			row:      row,
			staging:  stagingName(opID, tp.Name),
		})
	}

	var newGraph *models.Graph
	if g := payload.Graph; g != nil {
		if err := validateName("graph", g.Name); err != nil {
			return nil, err
		}
		existing, err := c.meta.GetGraph(ctx, ws.ID, g.Name)
		if err != nil {
			return nil, storeError(op, "look up graph", err)
		}
		switch {
		case existing == nil:
			newGraph = &models.Graph{WorkspaceID: ws.ID, Name: g.Name, EdgeTable: g.EdgeTable, NodeTables: g.NodeTables}
			issues, err := c.checkGraph(ctx, ws, g.Name, g.EdgeTable, g.NodeTables, pending)
			if err != nil {
				return nil, err
			}
			if len(issues) > 0 {
				return nil, apperrors.Referential(fmt.Sprintf("%d edge endpoints do not resolve", len(issues)), issues)
			}
		case overwrite && sameGraph(existing, g):
			affected = append(affected, g.Name)
		default:
			return nil, apperrors.Conflict(op, g.Name, "graph already exists")
		}
	}

	// Replacing a table must not break graphs that already use it.
	seen := make(map[string]bool)
	for _, name := range affected {
		if seen[name] {
			continue
		}
		seen[name] = true
		graph, err := c.meta.GetGraph(ctx, ws.ID, name)
		if err != nil {
			return nil, storeError(op, "look up graph", err)
		}
		if graph == nil {
			continue
		}
		issues, err := c.checkGraph(ctx, ws, graph.Name, graph.EdgeTable, graph.NodeTables, pending)
		if err != nil {
			return nil, err
		}
		if len(issues) > 0 {
			return nil, apperrors.Referential(
				fmt.Sprintf("replacing tables would leave %d dangling edges in graph %s", len(issues), graph.Name), issues)
		}
	}

	p := &plan{result: &Result{Operation: op}}
	swaps := make([]models.CollectionSwap, 0, len(changes))
	for _, ch := range changes {
		ch := ch
		p.steps = append(p.steps, step{
			name: "stage rows of " + ch.payload.Name,
			do: func(ctx context.Context) error {
				return c.graphs.WriteCollection(ctx, ws.Name, ch.staging, ch.payload.Kind, ch.payload.Documents)
			},
			undo: func(ctx context.Context) error { return c.graphs.DropCollection(ctx, ws.Name, ch.staging) },
		})
		swaps = append(swaps, models.CollectionSwap{Staging: ch.staging, Live: ch.payload.Name})
	}
	for _, ch := range changes {
		ch := ch
		p.steps = append(p.steps, step{
			name: "save metadata of " + ch.payload.Name,
			do:   func(ctx context.Context) error { return c.meta.SaveTable(ctx, ch.row) },
			undo: func(ctx context.Context) error {
				if ch.existing != nil {
					return c.meta.RestoreTable(ctx, ch.existing)
				}
				return c.meta.DeleteTable(ctx, ch.row.ID)
			},
		})
	}
	if newGraph != nil {
		def := models.GraphDefinition{Name: newGraph.Name, EdgeCollection: newGraph.EdgeTable, NodeCollections: newGraph.NodeTables}
		p.steps = append(p.steps,
			step{
				name: "insert graph row",
				do:   func(ctx context.Context) error { return c.meta.CreateGraph(ctx, newGraph) },
				undo: func(ctx context.Context) error { return c.meta.DeleteGraph(ctx, newGraph.ID) },
			},
			step{
				name: "create graph definition",
				do:   func(ctx context.Context) error { return c.graphs.CreateGraph(ctx, ws.Name, def) },
				undo: func(ctx context.Context) error { return c.graphs.DropGraph(ctx, ws.Name, def.Name) },
			},
		)
	}
	p.steps = append(p.steps, step{
		name: "promote staged collections",
		do:   func(ctx context.Context) error { return c.graphs.Promote(ctx, ws.Name, swaps) },
	})

	p.collect = func(r *Result) {
		for _, ch := range changes {
			r.Tables = append(r.Tables, *ch.row)
		}
		r.Graph = newGraph
	}
	return p, nil
}

func sameGraph(existing *models.Graph, g *ingest.GraphPayload) bool {
	return existing.EdgeTable == g.EdgeTable && sameTables(existing.NodeTables, g.NodeTables)
}

func sameTables(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]bool, len(b))
	for _, t := range b {
		want[t] = true
	}
	for _, t := range a {
		if !want[t] {
			return false
		}
	}
	return true
}

// entityOf names what a conflict of op is about.
func entityOf(op Operation) string {
	switch o := op.(type) {
	case CreateWorkspace:
		return o.Name
	case RenameWorkspace:
		return o.To
	case DeleteWorkspace:
		return o.Name
	case CreateOrReplaceTable:
		return o.Table.Name
	case DeleteTable:
		return o.Name
	case CreateGraph:
		return o.Name
	case DeleteGraph:
		return o.Name
	case AppendRows:
		return o.Table
	case DeleteRows:
		return o.Table
	case CommitPayload:
		if o.Payload == nil {
			return ""
		}
		if o.Payload.Graph != nil {
			return o.Payload.Graph.Name
		}
		names := make([]string, 0, len(o.Payload.Tables))
		for _, t := range o.Payload.Tables {
			names = append(names, t.Name)
		}
		return strings.Join(names, ",")
	}
	return ""
}
