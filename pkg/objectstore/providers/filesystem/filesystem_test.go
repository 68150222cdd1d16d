package filesystem

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/objectstore"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p := New(afero.NewMemMapFs(), "/store")
	if _, err := p.CreateCollection(context.Background(), "docs", &objectstore.CollectionConfig{Versioned: true}, nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return p
}

func TestPutGetUpdateDeleteVersioned(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	put, err := p.Put(ctx, objectstore.PutArgs{ID: "a", Value: []byte("v1"), Collection: "docs"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if put.Key.Version == "" {
		t.Fatalf("expected a version id on a versioned collection put")
	}

	got, err := p.Get(ctx, objectstore.GetArgs{ID: "a", Collection: "docs"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Value) != "v1" {
		t.Errorf("expected v1, got %q", got.Value)
	}

	if _, err := p.Put(ctx, objectstore.PutArgs{ID: "a", Value: []byte("v2"), Collection: "docs"}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err = p.Get(ctx, objectstore.GetArgs{ID: "a", Collection: "docs"})
	if err != nil {
		t.Fatalf("get after second put: %v", err)
	}
	if string(got.Value) != "v2" {
		t.Errorf("expected head to resolve to v2, got %q", got.Value)
	}

	versions, err := p.GetVersions(ctx, "a", "docs")
	if err != nil {
		t.Fatalf("get versions: %v", err)
	}
	if len(versions.Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions.Versions))
	}
	if !versions.Versions[len(versions.Versions)-1].Latest {
		t.Errorf("expected the last (greatest timestamp) version marked latest")
	}
	for i, v := range versions.Versions[:len(versions.Versions)-1] {
		if v.Latest {
			t.Errorf("version %d unexpectedly marked latest", i)
		}
	}

	updated, err := p.Update(ctx, objectstore.UpdateArgs{ID: "a", Properties: model.ObjectProperties{ContentType: "text/plain"}, Collection: "docs"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Properties.ContentType != "text/plain" {
		t.Errorf("expected updated content type, got %q", updated.Properties.ContentType)
	}

	if err := p.Delete(ctx, objectstore.DeleteArgs{ID: "a", Collection: "docs"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.Get(ctx, objectstore.GetArgs{ID: "a", Collection: "docs"}); !apierr.Is(err, apierr.KindNotFound) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
}

func TestPutEtagPrecondition(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	put, err := p.Put(ctx, objectstore.PutArgs{ID: "b", Value: []byte("v1"), Collection: "docs"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	item, err := p.Get(ctx, objectstore.GetArgs{ID: "b", Collection: "docs"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	etag := item.Properties.Etag
	_ = put

	if _, err := p.Put(ctx, objectstore.PutArgs{
		ID: "b", Value: []byte("v2"), Collection: "docs",
		MatchCondition: model.MatchCondition{IfMatch: "stale-etag"},
	}); !apierr.Is(err, apierr.KindPreconditionFailed) {
		t.Fatalf("expected PreconditionFailed on stale etag, got %v", err)
	}

	if _, err := p.Put(ctx, objectstore.PutArgs{
		ID: "b", Value: []byte("v2"), Collection: "docs",
		MatchCondition: model.MatchCondition{IfMatch: etag},
	}); err != nil {
		t.Fatalf("expected put with correct etag to succeed, got %v", err)
	}
}

func TestGetRange(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if _, err := p.Put(ctx, objectstore.PutArgs{ID: "c", Value: []byte("0123456789"), Collection: "docs"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	start, end := int64(2), int64(4)
	item, err := p.Get(ctx, objectstore.GetArgs{ID: "c", Collection: "docs", Start: &start, End: &end})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(item.Value) != "234" {
		t.Errorf("expected inclusive range '234', got %q", item.Value)
	}
}

func TestQueryDelimiter(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	for _, id := range []string{"a/1", "a/2", "b/1", "c"} {
		if _, err := p.Put(ctx, objectstore.PutArgs{ID: id, Value: []byte("x"), Collection: "docs"}); err != nil {
			t.Fatalf("put %q: %v", id, err)
		}
	}

	list, err := p.Query(ctx, objectstore.QueryArgs{Delimiter: "/", Collection: "docs"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Key.ID != "c" {
		t.Errorf("expected exactly item %q, got %#v", "c", list.Items)
	}
	if len(list.Prefixes) != 2 {
		t.Fatalf("expected 2 common prefixes, got %v", list.Prefixes)
	}
	if list.Prefixes[0] != "a/" || list.Prefixes[1] != "b/" {
		t.Errorf("unexpected prefixes: %v", list.Prefixes)
	}
}

func TestQueryPaging(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, err := p.Put(ctx, objectstore.PutArgs{ID: id, Value: []byte("x"), Collection: "docs"}); err != nil {
			t.Fatalf("put %q: %v", id, err)
		}
	}

	first, err := p.Query(ctx, objectstore.QueryArgs{Limit: 2, Collection: "docs"})
	if err != nil {
		t.Fatalf("query page 1: %v", err)
	}
	if len(first.Items) != 2 || first.Items[0].Key.ID != "a" || first.Items[1].Key.ID != "b" {
		t.Fatalf("unexpected page 1: %#v", first.Items)
	}
	if first.Continuation == "" {
		t.Fatalf("expected a continuation token when more results remain")
	}

	second, err := p.Query(ctx, objectstore.QueryArgs{Limit: 2, Continuation: first.Continuation, Collection: "docs"})
	if err != nil {
		t.Fatalf("query page 2: %v", err)
	}
	if len(second.Items) != 2 || second.Items[0].Key.ID != "c" || second.Items[1].Key.ID != "d" {
		t.Fatalf("unexpected page 2: %#v", second.Items)
	}

	third, err := p.Query(ctx, objectstore.QueryArgs{Limit: 2, Continuation: second.Continuation, Collection: "docs"})
	if err != nil {
		t.Fatalf("query page 3: %v", err)
	}
	if len(third.Items) != 1 || third.Items[0].Key.ID != "e" {
		t.Fatalf("unexpected page 3: %#v", third.Items)
	}
	if third.Continuation != "" {
		t.Errorf("expected no continuation once every item has been returned")
	}
}

func TestCollectionLifecycle(t *testing.T) {
	p := New(afero.NewMemMapFs(), "/store")
	ctx := context.Background()

	if has, _ := p.HasCollection(ctx, "notyet"); has {
		t.Fatalf("expected collection to not exist before creation")
	}
	result, err := p.CreateCollection(ctx, "notyet", &objectstore.CollectionConfig{}, nil)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if result.Status != model.CollectionCreated {
		t.Errorf("expected CollectionCreated, got %s", result.Status)
	}
	result, err = p.CreateCollection(ctx, "notyet", &objectstore.CollectionConfig{}, nil)
	if err != nil {
		t.Fatalf("recreate collection: %v", err)
	}
	if result.Status != model.CollectionExists {
		t.Errorf("expected CollectionExists on the second create, got %s", result.Status)
	}

	dropped, err := p.DropCollection(ctx, "notyet", nil)
	if err != nil {
		t.Fatalf("drop collection: %v", err)
	}
	if dropped.Status != model.CollectionDropped {
		t.Errorf("expected CollectionDropped, got %s", dropped.Status)
	}
}
