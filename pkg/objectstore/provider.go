// Package objectstore is the provider-agnostic object-store state machine
// (spec.md §4.2): put/get/update/delete/copy/generate/query/count/batch
// plus collection lifecycle, dispatched to a pluggable Provider the same
// way pkg/containerdeployment dispatches to a compute backend.
package objectstore

import (
	"context"

	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
)

// PutArgs carries everything a Put call needs, already normalized by
// opparse.Args.
type PutArgs struct {
	ID             string
	Value          []byte
	File           string
	Metadata       map[string]string
	Properties     model.ObjectProperties
	MatchCondition model.MatchCondition
	ReturnNew      bool
	Collection     string
}

// GetArgs carries a normalized get/get_properties/get_metadata call.
type GetArgs struct {
	ID             string
	Version        string
	File           string
	MatchCondition model.MatchCondition
	Start          *int64
	End            *int64
	Collection     string
}

// UpdateArgs carries a normalized update call.
type UpdateArgs struct {
	ID             string
	Version        string
	Metadata       map[string]string
	Properties     model.ObjectProperties
	MatchCondition model.MatchCondition
	Collection     string
}

// CopyArgs carries a normalized copy call.
type CopyArgs struct {
	ID               string
	SourceID         string
	SourceVersion    string
	SourceCollection string
	Metadata         map[string]string
	Properties       model.ObjectProperties
	MatchCondition   model.MatchCondition
	Collection       string
}

// DeleteArgs carries a normalized delete call.
type DeleteArgs struct {
	ID             string
	Version        string
	MatchCondition model.MatchCondition
	Collection     string
}

// QueryArgs carries a normalized query/count call (spec §4.2 listing
// algorithm input).
type QueryArgs struct {
	Prefix      string
	Delimiter   string
	StartAfter  string
	EndBefore   string
	Limit       int
	Continuation string
	Paging      bool
	PageSize    int
	Collection  string
}

// GenerateArgs carries a normalized signed-URL request.
type GenerateArgs struct {
	ID         string
	Version    string
	Method     string // GET | PUT | DELETE
	ExpiryMS   int64
	Collection string
}

// CollectionConfig configures a CreateCollection call.
type CollectionConfig struct {
	ACL       string
	Versioned bool
}

// Provider is implemented by each object-store backend (filesystem, s3,
// azureblob, gcs).
type Provider interface {
	dispatch.Provider

	CreateCollection(ctx context.Context, name string, cfg *CollectionConfig, whereExists *bool) (model.CollectionResult, error)
	DropCollection(ctx context.Context, name string, whereExists *bool) (model.CollectionResult, error)
	HasCollection(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)

	Put(ctx context.Context, args PutArgs) (model.ObjectItem, error)
	Get(ctx context.Context, args GetArgs) (model.ObjectItem, error)
	GetProperties(ctx context.Context, args GetArgs) (model.ObjectItem, error)
	GetVersions(ctx context.Context, id, collection string) (model.ObjectItem, error)
	Update(ctx context.Context, args UpdateArgs) (model.ObjectItem, error)
	Delete(ctx context.Context, args DeleteArgs) error
	Copy(ctx context.Context, args CopyArgs) (model.ObjectItem, error)
	Generate(ctx context.Context, args GenerateArgs) (model.ObjectItem, error)
	Query(ctx context.Context, args QueryArgs) (model.ObjectList, error)
	Count(ctx context.Context, args QueryArgs) (int, error)
	Batch(ctx context.Context, batch model.ObjectBatch, collection string) ([]model.ObjectBatchResult, error)
}
