package objectstore

import (
	"context"
	"testing"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
)

// fakeProvider is an in-memory stand-in used to exercise Component's
// validation and logging wrapper without a real backend, the same role
// opparse_test.go's bare structs play for opparse.
type fakeProvider struct {
	collections map[string]bool
	putCalls    int
	lastPut     PutArgs
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{collections: map[string]bool{}}
}

func (f *fakeProvider) Supports(feat dispatch.Feature) bool { return dispatch.FeatureSet{}.Supports(feat) }
func (f *fakeProvider) Close(ctx context.Context) error     { return nil }

func (f *fakeProvider) CreateCollection(ctx context.Context, name string, cfg *CollectionConfig, whereExists *bool) (model.CollectionResult, error) {
	f.collections[name] = true
	return model.CollectionResult{Status: model.CollectionCreated}, nil
}

func (f *fakeProvider) DropCollection(ctx context.Context, name string, whereExists *bool) (model.CollectionResult, error) {
	delete(f.collections, name)
	return model.CollectionResult{Status: model.CollectionDropped}, nil
}

func (f *fakeProvider) HasCollection(ctx context.Context, name string) (bool, error) {
	return f.collections[name], nil
}

func (f *fakeProvider) ListCollections(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeProvider) Put(ctx context.Context, args PutArgs) (model.ObjectItem, error) {
	f.putCalls++
	f.lastPut = args
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}, Value: args.Value}, nil
}

func (f *fakeProvider) Get(ctx context.Context, args GetArgs) (model.ObjectItem, error) {
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}}, nil
}

func (f *fakeProvider) GetProperties(ctx context.Context, args GetArgs) (model.ObjectItem, error) {
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}}, nil
}

func (f *fakeProvider) GetVersions(ctx context.Context, id, collection string) (model.ObjectItem, error) {
	return model.ObjectItem{Key: model.ObjectKey{ID: id}}, nil
}

func (f *fakeProvider) Update(ctx context.Context, args UpdateArgs) (model.ObjectItem, error) {
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}}, nil
}

func (f *fakeProvider) Delete(ctx context.Context, args DeleteArgs) error { return nil }

func (f *fakeProvider) Copy(ctx context.Context, args CopyArgs) (model.ObjectItem, error) {
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}}, nil
}

func (f *fakeProvider) Generate(ctx context.Context, args GenerateArgs) (model.ObjectItem, error) {
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}}, nil
}

func (f *fakeProvider) Query(ctx context.Context, args QueryArgs) (model.ObjectList, error) {
	return model.ObjectList{}, nil
}

func (f *fakeProvider) Count(ctx context.Context, args QueryArgs) (int, error) { return 0, nil }

func (f *fakeProvider) Batch(ctx context.Context, batch model.ObjectBatch, collection string) ([]model.ObjectBatchResult, error) {
	return nil, nil
}

func TestPutRejectsEmptyID(t *testing.T) {
	c := New(newFakeProvider())
	_, err := c.Put(context.Background(), PutArgs{Collection: "docs"})
	if !apierr.Is(err, apierr.KindBadRequest) {
		t.Fatalf("expected KindBadRequest, got %v", err)
	}
}

func TestPutDelegatesToProvider(t *testing.T) {
	fake := newFakeProvider()
	c := New(fake)
	item, err := c.Put(context.Background(), PutArgs{ID: "a", Value: []byte("hi"), Collection: "docs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.putCalls != 1 {
		t.Fatalf("put calls = %d, want 1", fake.putCalls)
	}
	if item.Key.ID != "a" {
		t.Fatalf("id = %q, want a", item.Key.ID)
	}
}

func TestGetRejectsInvertedRange(t *testing.T) {
	c := New(newFakeProvider())
	start, end := int64(10), int64(2)
	_, err := c.Get(context.Background(), GetArgs{ID: "a", Start: &start, End: &end})
	if !apierr.Is(err, apierr.KindBadRequest) {
		t.Fatalf("expected KindBadRequest, got %v", err)
	}
}

func TestGenerateRejectsUnsupportedMethod(t *testing.T) {
	c := New(newFakeProvider())
	_, err := c.Generate(context.Background(), GenerateArgs{ID: "a", Method: "POST"})
	if !apierr.Is(err, apierr.KindBadRequest) {
		t.Fatalf("expected KindBadRequest, got %v", err)
	}
}

func TestBatchRejectsUnsupportedKind(t *testing.T) {
	c := New(newFakeProvider())
	_, err := c.Batch(context.Background(), model.ObjectBatch{Kind: "copy"}, "docs")
	if !apierr.Is(err, apierr.KindBadRequest) {
		t.Fatalf("expected KindBadRequest, got %v", err)
	}
}

func TestCreateCollectionHonorsWhereExists(t *testing.T) {
	fake := newFakeProvider()
	c := New(fake)
	notExists := false
	if _, err := c.CreateCollection(context.Background(), "docs", nil, &notExists); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.CreateCollection(context.Background(), "docs", nil, &notExists); !apierr.Is(err, apierr.KindConflict) {
		t.Fatalf("expected KindConflict on re-create, got %v", err)
	}
}

func TestDropCollectionHonorsWhereExists(t *testing.T) {
	c := New(newFakeProvider())
	exists := true
	if _, err := c.DropCollection(context.Background(), "missing", &exists); !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}
