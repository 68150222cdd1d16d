// Package filesystem is the reference objectstore.Provider: a single
// local directory tree, one sub-directory per collection, grounded on
// original_source/x8/storage/object_store/providers/file_system.py. Every
// id maps to a "head" row holding its current properties/metadata (plus
// inline bytes when the collection is unversioned) and, when the
// collection is versioned, a family of per-version rows the head points
// at by version id. The original's SQLite DocumentStore is replaced by
// kvstore.Store; the original's on-disk symlink from id to its current
// version file is replaced by the head row's HeadVersion pointer, since
// kvstore has no native symlink concept.
package filesystem

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/objectstore"
	"github.com/x8labs/cloudcore/pkg/objectstore/kvstore"
)

const configKey = "__collection_config__"

// Provider is the local-filesystem object store.
type Provider struct {
	store *kvstore.Store
}

// New roots a Provider at dir using fs (afero.NewOsFs() in production,
// afero.NewMemMapFs() in tests).
func New(fs afero.Fs, dir string) *Provider {
	return &Provider{store: kvstore.Open(fs, dir)}
}

func (p *Provider) Supports(f dispatch.Feature) bool { return dispatch.FeatureSet{}.Supports(f) }

func (p *Provider) Close(ctx context.Context) error { return nil }

// collectionRecord is the config row written by CreateCollection.
type collectionRecord struct {
	Versioned bool
	ACL       string
}

// headRecord is the object's head row: object-<id>.
type headRecord struct {
	ID          string
	HeadVersion string // "" when the collection is unversioned
	Metadata    map[string]string
	Properties model.ObjectProperties
	Data        []byte // inline bytes only when HeadVersion == ""
}

// versionRecord is one immutable version row: version-<id>-<version>.
type versionRecord struct {
	ID         string
	Version    string
	Metadata   map[string]string
	Properties model.ObjectProperties
	Data       []byte
	CreatedAt  float64
}

func headKey(id string) string    { return "object-" + id }
func versionKey(id, v string) string { return "version-" + id + "-" + v }

func (p *Provider) CreateCollection(ctx context.Context, name string, cfg *objectstore.CollectionConfig, whereExists *bool) (model.CollectionResult, error) {
	created, err := p.store.CreateCollection(name)
	if err != nil {
		return model.CollectionResult{}, err
	}
	rec := collectionRecord{}
	if cfg != nil {
		rec.Versioned = cfg.Versioned
		rec.ACL = cfg.ACL
	}
	if _, err := p.store.Put(name, configKey, mustMarshal(rec)); err != nil {
		return model.CollectionResult{}, err
	}
	if created {
		return model.CollectionResult{Status: model.CollectionCreated}, nil
	}
	return model.CollectionResult{Status: model.CollectionExists}, nil
}

func (p *Provider) DropCollection(ctx context.Context, name string, whereExists *bool) (model.CollectionResult, error) {
	dropped, err := p.store.DropCollection(name)
	if err != nil {
		return model.CollectionResult{}, err
	}
	if dropped {
		return model.CollectionResult{Status: model.CollectionDropped}, nil
	}
	return model.CollectionResult{Status: model.CollectionNotExists}, nil
}

func (p *Provider) HasCollection(ctx context.Context, name string) (bool, error) {
	return p.store.HasCollection(name)
}

func (p *Provider) ListCollections(ctx context.Context) ([]string, error) {
	return p.store.ListCollections()
}

func (p *Provider) isVersioned(collection string) bool {
	row, err := p.store.Get(collection, configKey)
	if err != nil {
		return false
	}
	var rec collectionRecord
	if err := unmarshal(row.Value, &rec); err != nil {
		return false
	}
	return rec.Versioned
}

// readHead loads the head row for id, returning (nil, nil) if absent.
func (p *Provider) readHead(collection, id string) (*headRecord, string, error) {
	row, err := p.store.Get(collection, headKey(id))
	if err != nil {
		if apierr.Is(err, apierr.KindNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var rec headRecord
	if err := unmarshal(row.Value, &rec); err != nil {
		return nil, "", err
	}
	return &rec, row.Etag, nil
}

func (p *Provider) readVersion(collection, id, version string) (*versionRecord, string, error) {
	row, err := p.store.Get(collection, versionKey(id, version))
	if err != nil {
		if apierr.Is(err, apierr.KindNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var rec versionRecord
	if err := unmarshal(row.Value, &rec); err != nil {
		return nil, "", err
	}
	return &rec, row.Etag, nil
}

// currentItem resolves id's live ObjectItem (head bytes, or the bytes of
// the version the head points at), for precondition evaluation and reads.
func (p *Provider) currentItem(collection, id string) (*model.ObjectItem, error) {
	head, etag, err := p.readHead(collection, id)
	if err != nil || head == nil {
		return nil, err
	}
	if head.HeadVersion == "" {
		props := head.Properties
		props.Etag = etag
		return &model.ObjectItem{
			Key:        model.ObjectKey{ID: id},
			Value:      head.Data,
			Metadata:   head.Metadata,
			Properties: props,
		}, nil
	}
	ver, verEtag, err := p.readVersion(collection, id, head.HeadVersion)
	if err != nil {
		return nil, err
	}
	if ver == nil {
		return nil, apierr.New(apierr.KindBadRequest, "head of %q points at missing version %q", id, head.HeadVersion)
	}
	props := ver.Properties
	props.Etag = verEtag
	return &model.ObjectItem{
		Key:        model.ObjectKey{ID: id, Version: ver.Version},
		Value:      ver.Data,
		Metadata:   ver.Metadata,
		Properties: props,
	}, nil
}

func (p *Provider) Put(ctx context.Context, args objectstore.PutArgs) (model.ObjectItem, error) {
	current, err := p.currentItem(args.Collection, args.ID)
	if err != nil {
		return model.ObjectItem{}, err
	}
	if err := matchCheck(current, args.MatchCondition); err != nil {
		return model.ObjectItem{}, err
	}

	now := nowEpoch()
	props := args.Properties
	props.LastModified = now
	props.ContentLength = int64(len(args.Value))

	if p.isVersioned(args.Collection) {
		version := uuid.NewString()
		ver := versionRecord{ID: args.ID, Version: version, Metadata: args.Metadata, Properties: props, Data: args.Value, CreatedAt: now}
		verEtag, err := p.store.Put(args.Collection, versionKey(args.ID, version), mustMarshal(ver))
		if err != nil {
			return model.ObjectItem{}, err
		}
		head := headRecord{ID: args.ID, HeadVersion: version, Metadata: args.Metadata, Properties: props}
		if _, err := p.store.Put(args.Collection, headKey(args.ID), mustMarshal(head)); err != nil {
			return model.ObjectItem{}, err
		}
		props.Etag = verEtag
		return model.ObjectItem{Key: model.ObjectKey{ID: args.ID, Version: version}, Value: args.Value, Metadata: args.Metadata, Properties: props}, nil
	}

	head := headRecord{ID: args.ID, Metadata: args.Metadata, Properties: props, Data: args.Value}
	etag, err := p.store.Put(args.Collection, headKey(args.ID), mustMarshal(head))
	if err != nil {
		return model.ObjectItem{}, err
	}
	props.Etag = etag
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}, Value: args.Value, Metadata: args.Metadata, Properties: props}, nil
}

func (p *Provider) Get(ctx context.Context, args objectstore.GetArgs) (model.ObjectItem, error) {
	item, err := p.resolve(args.Collection, args.ID, args.Version)
	if err != nil {
		return model.ObjectItem{}, err
	}
	if item == nil {
		return model.ObjectItem{}, apierr.New(apierr.KindNotFound, "object %q not found", args.ID)
	}
	if err := matchCheck(item, args.MatchCondition); err != nil {
		return model.ObjectItem{}, err
	}
	if args.Start != nil || args.End != nil {
		item.Value = sliceRange(item.Value, args.Start, args.End)
	}
	return *item, nil
}

// resolve loads id at the given version ("" means head/current).
func (p *Provider) resolve(collection, id, version string) (*model.ObjectItem, error) {
	if version == "" {
		return p.currentItem(collection, id)
	}
	ver, etag, err := p.readVersion(collection, id, version)
	if err != nil {
		return nil, err
	}
	if ver == nil {
		return nil, nil
	}
	props := ver.Properties
	props.Etag = etag
	return &model.ObjectItem{Key: model.ObjectKey{ID: id, Version: version}, Value: ver.Data, Metadata: ver.Metadata, Properties: props}, nil
}

func sliceRange(data []byte, start, end *int64) []byte {
	lo := int64(0)
	if start != nil {
		lo = *start
	}
	hi := int64(len(data))
	if end != nil && *end+1 < hi {
		hi = *end + 1
	}
	if lo < 0 {
		lo = 0
	}
	if lo > int64(len(data)) {
		lo = int64(len(data))
	}
	if hi < lo {
		hi = lo
	}
	return data[lo:hi]
}

func (p *Provider) GetProperties(ctx context.Context, args objectstore.GetArgs) (model.ObjectItem, error) {
	item, err := p.Get(ctx, args)
	if err != nil {
		return model.ObjectItem{}, err
	}
	item.Value = nil
	return item, nil
}

// GetVersions returns id's versions oldest-first with exactly the greatest
// CreatedAt marked Latest (spec §4.2: "version listings ascending by
// creation timestamp with latest=true on the greatest timestamp"),
// mirroring file_system.py's query-desc-then-reverse-and-flag approach.
func (p *Provider) GetVersions(ctx context.Context, id, collection string) (model.ObjectItem, error) {
	rows, err := p.store.List(collection, "version-"+id+"-")
	if err != nil {
		return model.ObjectItem{}, err
	}
	versions := make([]versionRecord, 0, len(rows))
	etags := make([]string, 0, len(rows))
	for _, row := range rows {
		var rec versionRecord
		if err := unmarshal(row.Value, &rec); err != nil {
			return model.ObjectItem{}, err
		}
		versions = append(versions, rec)
		etags = append(etags, row.Etag)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].CreatedAt < versions[j].CreatedAt })
	if len(versions) == 0 {
		return model.ObjectItem{}, apierr.New(apierr.KindNotFound, "object %q not found", id)
	}
	out := make([]model.ObjectVersion, len(versions))
	for i, v := range versions {
		out[i] = model.ObjectVersion{Version: v.Version, LastModified: v.CreatedAt, Etag: etags[i]}
	}
	out[len(out)-1].Latest = true
	return model.ObjectItem{Key: model.ObjectKey{ID: id}, Versions: out}, nil
}

func (p *Provider) Update(ctx context.Context, args objectstore.UpdateArgs) (model.ObjectItem, error) {
	item, err := p.resolve(args.Collection, args.ID, args.Version)
	if err != nil {
		return model.ObjectItem{}, err
	}
	if item == nil {
		return model.ObjectItem{}, apierr.New(apierr.KindNotFound, "object %q not found", args.ID)
	}
	if err := matchCheck(item, args.MatchCondition); err != nil {
		return model.ObjectItem{}, err
	}

	props := item.Properties
	if args.Properties.ContentType != "" {
		props.ContentType = args.Properties.ContentType
	}
	if args.Properties.ContentEncoding != "" {
		props.ContentEncoding = args.Properties.ContentEncoding
	}
	if args.Properties.ContentDisposition != "" {
		props.ContentDisposition = args.Properties.ContentDisposition
	}
	if args.Properties.ContentLanguage != "" {
		props.ContentLanguage = args.Properties.ContentLanguage
	}
	if args.Properties.CacheControl != "" {
		props.CacheControl = args.Properties.CacheControl
	}
	if args.Properties.StorageClass != "" {
		props.StorageClass = args.Properties.StorageClass
	}
	props.LastModified = nowEpoch()
	metadata := item.Metadata
	if args.Metadata != nil {
		metadata = args.Metadata
	}

	version := item.Key.Version
	if version == "" {
		head := headRecord{ID: args.ID, Metadata: metadata, Properties: props, Data: item.Value}
		etag, err := p.store.Put(args.Collection, headKey(args.ID), mustMarshal(head))
		if err != nil {
			return model.ObjectItem{}, err
		}
		props.Etag = etag
		return model.ObjectItem{Key: model.ObjectKey{ID: args.ID}, Value: item.Value, Metadata: metadata, Properties: props}, nil
	}
	ver := versionRecord{ID: args.ID, Version: version, Metadata: metadata, Properties: props, Data: item.Value, CreatedAt: props.LastModified}
	etag, err := p.store.Put(args.Collection, versionKey(args.ID, version), mustMarshal(ver))
	if err != nil {
		return model.ObjectItem{}, err
	}
	props.Etag = etag
	return model.ObjectItem{Key: model.ObjectKey{ID: args.ID, Version: version}, Value: item.Value, Metadata: metadata, Properties: props}, nil
}

// Delete removes one version, every version (Version == "*"), or the
// current head when Version == "" (file_system.py's three delete cases).
func (p *Provider) Delete(ctx context.Context, args objectstore.DeleteArgs) error {
	current, err := p.currentItem(args.Collection, args.ID)
	if err != nil {
		return err
	}
	if err := matchCheck(current, args.MatchCondition); err != nil {
		return err
	}

	switch {
	case args.Version == "*":
		rows, err := p.store.List(args.Collection, "version-"+args.ID+"-")
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := p.store.Delete(args.Collection, row.Key); err != nil {
				return err
			}
		}
		return p.store.Delete(args.Collection, headKey(args.ID))
	case args.Version != "":
		return p.store.Delete(args.Collection, versionKey(args.ID, args.Version))
	default:
		if current != nil && current.Key.Version != "" {
			if err := p.store.Delete(args.Collection, versionKey(args.ID, current.Key.Version)); err != nil {
				return err
			}
		}
		return p.store.Delete(args.Collection, headKey(args.ID))
	}
}

// Copy reads the source object and writes it as a new Put against the
// destination id, stripping Etag/LastModified the way file_system.py's
// copy() does before handing merged properties to put().
func (p *Provider) Copy(ctx context.Context, args objectstore.CopyArgs) (model.ObjectItem, error) {
	srcCollection := args.SourceCollection
	if srcCollection == "" {
		srcCollection = args.Collection
	}
	src, err := p.resolve(srcCollection, args.SourceID, args.SourceVersion)
	if err != nil {
		return model.ObjectItem{}, err
	}
	if src == nil {
		return model.ObjectItem{}, apierr.New(apierr.KindNotFound, "source object %q not found", args.SourceID)
	}
	props := src.Properties
	props.Etag = ""
	props.LastModified = 0
	if args.Properties.ContentType != "" {
		props.ContentType = args.Properties.ContentType
	}
	metadata := src.Metadata
	if args.Metadata != nil {
		metadata = args.Metadata
	}
	return p.Put(ctx, objectstore.PutArgs{
		ID:             args.ID,
		Value:          src.Value,
		Metadata:       metadata,
		Properties:     props,
		MatchCondition: args.MatchCondition,
		Collection:     args.Collection,
	})
}

// Generate returns a file:// URL, matching the original's reference
// provider (no signed-URL service exists for a local filesystem).
func (p *Provider) Generate(ctx context.Context, args objectstore.GenerateArgs) (model.ObjectItem, error) {
	item, err := p.resolve(args.Collection, args.ID, args.Version)
	if err != nil {
		return model.ObjectItem{}, err
	}
	if item == nil {
		return model.ObjectItem{}, apierr.New(apierr.KindNotFound, "object %q not found", args.ID)
	}
	item.URL = "file://" + args.Collection + "/" + args.ID
	if args.Version != "" {
		item.URL += "@" + args.Version
	}
	return *item, nil
}

// Query implements the 5-step listing algorithm (spec §4.2): collect head
// rows with the prefix, fold anything past the first delimiter into a
// common prefix, bound by start-after/end-before, sort lexicographically,
// then page by continuation+limit.
func (p *Provider) Query(ctx context.Context, args objectstore.QueryArgs) (model.ObjectList, error) {
	rows, err := p.store.List(args.Collection, "object-"+args.Prefix)
	if err != nil {
		return model.ObjectList{}, err
	}

	type entry struct {
		id     string
		item   *model.ObjectItem
		prefix string
	}
	var entries []entry
	seenPrefix := map[string]bool{}
	for _, row := range rows {
		if row.Key == configKey {
			continue
		}
		id := strings.TrimPrefix(row.Key, "object-")
		rest := strings.TrimPrefix(id, args.Prefix)
		if args.Delimiter != "" {
			if idx := strings.Index(rest, args.Delimiter); idx >= 0 {
				common := args.Prefix + rest[:idx+len(args.Delimiter)]
				if !seenPrefix[common] {
					seenPrefix[common] = true
					entries = append(entries, entry{id: common, prefix: common})
				}
				continue
			}
		}
		var rec headRecord
		if err := unmarshal(row.Value, &rec); err != nil {
			return model.ObjectList{}, err
		}
		props := rec.Properties
		props.Etag = row.Etag
		entries = append(entries, entry{id: id, item: &model.ObjectItem{Key: model.ObjectKey{ID: id}, Metadata: rec.Metadata, Properties: props}})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	filtered := entries[:0]
	for _, e := range entries {
		if args.StartAfter != "" && e.id <= args.StartAfter {
			continue
		}
		if args.EndBefore != "" && e.id >= args.EndBefore {
			continue
		}
		filtered = append(filtered, e)
	}
	entries = filtered

	start := 0
	if args.Continuation != "" {
		for i, e := range entries {
			if e.id > args.Continuation {
				start = i
				break
			}
			start = i + 1
		}
	}
	entries = entries[start:]

	limit := args.Limit
	if limit <= 0 {
		limit = len(entries)
	}
	truncated := len(entries) > limit
	if truncated {
		entries = entries[:limit]
	}

	out := model.ObjectList{}
	for _, e := range entries {
		if e.item != nil {
			out.Items = append(out.Items, *e.item)
		} else {
			out.Prefixes = append(out.Prefixes, e.prefix)
		}
	}
	if truncated && len(entries) > 0 {
		out.Continuation = entries[len(entries)-1].id
	}
	return out, nil
}

func (p *Provider) Count(ctx context.Context, args objectstore.QueryArgs) (int, error) {
	args.Limit = 0
	args.Continuation = ""
	list, err := p.Query(ctx, args)
	if err != nil {
		return 0, err
	}
	return len(list.Items) + len(list.Prefixes), nil
}

func (p *Provider) Batch(ctx context.Context, batch model.ObjectBatch, collection string) ([]model.ObjectBatchResult, error) {
	results := make([]model.ObjectBatchResult, len(batch.Ops))
	for i, op := range batch.Ops {
		err := p.Delete(ctx, objectstore.DeleteArgs{ID: op.Key.ID, Version: op.Key.Version, MatchCondition: op.Where, Collection: collection})
		results[i] = model.ObjectBatchResult{Key: op.Key, Error: err}
	}
	return results, nil
}

// matchCheck evaluates cond against current (nil meaning "object does not
// exist"), the Go equivalent of file_system.py's _match.
func matchCheck(current *model.ObjectItem, cond model.MatchCondition) error {
	if cond.IsZero() {
		return nil
	}
	if current == nil {
		if cond.Exists != nil && *cond.Exists {
			return apierr.New(apierr.KindPreconditionFailed, "object does not exist")
		}
		if cond.IfMatch != "" || cond.IfUnmodifiedSince != nil {
			return apierr.New(apierr.KindPreconditionFailed, "object does not exist")
		}
		return nil
	}
	if cond.Exists != nil && !*cond.Exists {
		return apierr.New(apierr.KindPreconditionFailed, "object already exists")
	}
	etag := current.Properties.Etag
	if cond.IfMatch != "" && cond.IfMatch != "*" && cond.IfMatch != etag {
		return apierr.New(apierr.KindPreconditionFailed, "etag mismatch")
	}
	if cond.IfNoneMatch != "" {
		for _, tag := range strings.Split(cond.IfNoneMatch, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || tag == etag {
				return apierr.New(apierr.KindNotModified, "etag matches If-None-Match")
			}
		}
	}
	if cond.IfVersionMatch != "" && cond.IfVersionMatch != current.Key.Version {
		return apierr.New(apierr.KindPreconditionFailed, "version mismatch")
	}
	if cond.IfVersionNotMatch != "" && cond.IfVersionNotMatch == current.Key.Version {
		return apierr.New(apierr.KindPreconditionFailed, "version matches If-Version-Not-Match")
	}
	if cond.IfModifiedSince != nil && current.Properties.LastModified <= *cond.IfModifiedSince {
		return apierr.New(apierr.KindNotModified, "not modified since")
	}
	if cond.IfUnmodifiedSince != nil && current.Properties.LastModified > *cond.IfUnmodifiedSince {
		return apierr.New(apierr.KindPreconditionFailed, "modified since")
	}
	return nil
}

func nowEpoch() float64 { return float64(time.Now().UnixNano()) / 1e9 }
