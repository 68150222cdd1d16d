package objectstore

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/asynctask"
	"github.com/x8labs/cloudcore/pkg/model"
)

// Component is the provider-agnostic object-store entry point (spec.md
// §4.2), the objectstore equivalent of containerdeployment.Component.
// Unlike the compute side (klog throughout), the storage core logs each
// request through logrus with structured id/collection fields, following
// the teacher's own use of logrus in pkg/kubernetes/argorollouts.go.
type Component struct {
	Provider Provider
	Log      *logrus.Logger
}

func New(p Provider) *Component { return &Component{Provider: p, Log: logrus.StandardLogger()} }

func (c *Component) logger() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

func (c *Component) Close(ctx context.Context) error { return c.Provider.Close(ctx) }

// CreateCollection checks the where-exists precondition against
// HasCollection before delegating, so providers only ever see a
// precondition that already matches reality.
func (c *Component) CreateCollection(ctx context.Context, name string, cfg *CollectionConfig, whereExists *bool) (model.CollectionResult, error) {
	exists, err := c.Provider.HasCollection(ctx, name)
	if err != nil {
		return model.CollectionResult{}, err
	}
	if err := checkWherePrecondition(whereExists, exists, name); err != nil {
		return model.CollectionResult{}, err
	}
	return c.Provider.CreateCollection(ctx, name, cfg, whereExists)
}

func (c *Component) DropCollection(ctx context.Context, name string, whereExists *bool) (model.CollectionResult, error) {
	exists, err := c.Provider.HasCollection(ctx, name)
	if err != nil {
		return model.CollectionResult{}, err
	}
	if err := checkWherePrecondition(whereExists, exists, name); err != nil {
		return model.CollectionResult{}, err
	}
	return c.Provider.DropCollection(ctx, name, whereExists)
}

func (c *Component) HasCollection(ctx context.Context, name string) (bool, error) {
	return c.Provider.HasCollection(ctx, name)
}

func (c *Component) ListCollections(ctx context.Context) ([]string, error) {
	return c.Provider.ListCollections(ctx)
}

// Put writes an object's bytes and metadata, honoring args.MatchCondition
// as a precondition the provider evaluates against the object it currently
// holds (spec §4.2, §7: If-Match/If-None-Match/If-Version-*/Exists).
func (c *Component) Put(ctx context.Context, args PutArgs) (model.ObjectItem, error) {
	if args.ID == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "put requires a non-empty id")
	}
	item, err := c.Provider.Put(ctx, args)
	c.logger().WithFields(logrus.Fields{"op": "put", "collection": args.Collection, "id": args.ID}).
		WithError(err).Debug("objectstore request")
	return item, err
}

func (c *Component) APut(ctx context.Context, args PutArgs) *asynctask.Task[model.ObjectItem] {
	return asynctask.Run(func() (model.ObjectItem, error) { return c.Put(ctx, args) })
}

func (c *Component) Get(ctx context.Context, args GetArgs) (model.ObjectItem, error) {
	if args.ID == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "get requires a non-empty id")
	}
	if args.Start != nil && args.End != nil && *args.Start > *args.End {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "range start %d is after end %d", *args.Start, *args.End)
	}
	item, err := c.Provider.Get(ctx, args)
	c.logger().WithFields(logrus.Fields{"op": "get", "collection": args.Collection, "id": args.ID}).
		WithError(err).Debug("objectstore request")
	return item, err
}

func (c *Component) AGet(ctx context.Context, args GetArgs) *asynctask.Task[model.ObjectItem] {
	return asynctask.Run(func() (model.ObjectItem, error) { return c.Get(ctx, args) })
}

func (c *Component) GetProperties(ctx context.Context, args GetArgs) (model.ObjectItem, error) {
	if args.ID == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "get_properties requires a non-empty id")
	}
	return c.Provider.GetProperties(ctx, args)
}

func (c *Component) GetVersions(ctx context.Context, id, collection string) (model.ObjectItem, error) {
	if id == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "get_versions requires a non-empty id")
	}
	return c.Provider.GetVersions(ctx, id, collection)
}

func (c *Component) Update(ctx context.Context, args UpdateArgs) (model.ObjectItem, error) {
	if args.ID == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "update requires a non-empty id")
	}
	return c.Provider.Update(ctx, args)
}

func (c *Component) AUpdate(ctx context.Context, args UpdateArgs) *asynctask.Task[model.ObjectItem] {
	return asynctask.Run(func() (model.ObjectItem, error) { return c.Update(ctx, args) })
}

func (c *Component) Delete(ctx context.Context, args DeleteArgs) error {
	if args.ID == "" {
		return apierr.New(apierr.KindBadRequest, "delete requires a non-empty id")
	}
	err := c.Provider.Delete(ctx, args)
	c.logger().WithFields(logrus.Fields{"op": "delete", "collection": args.Collection, "id": args.ID, "version": args.Version}).
		WithError(err).Debug("objectstore request")
	return err
}

func (c *Component) ADelete(ctx context.Context, args DeleteArgs) *asynctask.Task[struct{}] {
	return asynctask.Run(func() (struct{}, error) { return struct{}{}, c.Delete(ctx, args) })
}

func (c *Component) Copy(ctx context.Context, args CopyArgs) (model.ObjectItem, error) {
	if args.ID == "" || args.SourceID == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "copy requires both id and source_id")
	}
	return c.Provider.Copy(ctx, args)
}

func (c *Component) Generate(ctx context.Context, args GenerateArgs) (model.ObjectItem, error) {
	if args.ID == "" {
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "generate requires a non-empty id")
	}
	switch args.Method {
	case "", "GET", "PUT", "DELETE":
	default:
		return model.ObjectItem{}, apierr.New(apierr.KindBadRequest, "generate: unsupported method %q", args.Method)
	}
	return c.Provider.Generate(ctx, args)
}

// Query runs the 5-step listing algorithm (spec §4.2): providers return
// one page honoring Prefix/Delimiter/StartAfter/EndBefore/Limit and
// report Continuation for the caller to resume from.
func (c *Component) Query(ctx context.Context, args QueryArgs) (model.ObjectList, error) {
	return c.Provider.Query(ctx, args)
}

func (c *Component) AQuery(ctx context.Context, args QueryArgs) *asynctask.Task[model.ObjectList] {
	return asynctask.Run(func() (model.ObjectList, error) { return c.Query(ctx, args) })
}

func (c *Component) Count(ctx context.Context, args QueryArgs) (int, error) {
	return c.Provider.Count(ctx, args)
}

// Batch dispatches a homogeneous batch of operations (spec §4.2: delete is
// the only supported kind today).
func (c *Component) Batch(ctx context.Context, batch model.ObjectBatch, collection string) ([]model.ObjectBatchResult, error) {
	if batch.Kind != "delete" {
		return nil, apierr.New(apierr.KindBadRequest, "batch: unsupported kind %q", batch.Kind)
	}
	return c.Provider.Batch(ctx, batch, collection)
}

func checkWherePrecondition(whereExists *bool, exists bool, name string) error {
	if whereExists == nil {
		return nil
	}
	if *whereExists && !exists {
		return apierr.New(apierr.KindNotFound, "collection %q does not exist", name)
	}
	if !*whereExists && exists {
		return apierr.New(apierr.KindConflict, "collection %q already exists", name)
	}
	return nil
}
