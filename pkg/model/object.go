package model

// ObjectKey identifies an object, optionally pinned to a specific version.
// Version == "*" means "all versions" and is only meaningful for Delete.
// Id is a UTF-8 path-shaped string; a leading "/" is preserved verbatim.
type ObjectKey struct {
	ID      string
	Version string
}

// AllVersions reports whether this key targets every version of Id.
func (k ObjectKey) AllVersions() bool { return k.Version == "*" }

// StorageClass names a cloud-neutral storage tier.
type StorageClass string

const (
	StorageHot     StorageClass = "hot"
	StorageCool    StorageClass = "cool"
	StorageCold    StorageClass = "cold"
	StorageArchive StorageClass = "archive"
)

// ObjectProperties holds the system-managed metadata of an object.
// LastModified is epoch seconds; Etag is an opaque version token.
type ObjectProperties struct {
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	ContentLength      int64
	ContentMD5         string
	ContentType        string
	CRC32C             string
	Expires            *float64
	LastModified       float64
	Etag               string
	StorageClass       StorageClass
}

// ObjectVersion is one entry in an ObjectItem's Versions list.
type ObjectVersion struct {
	Version      string
	LastModified float64
	Latest       bool
	Etag         string
}

// ObjectItem is the normalized result of put/get/update/copy and an entry
// in query/list results.
type ObjectItem struct {
	Key        ObjectKey
	Value      []byte
	Metadata   map[string]string
	Properties ObjectProperties
	Versions   []ObjectVersion
	URL        string
}

// MatchCondition is the compiled form of a `where` expression restricted to
// pre-/post-condition checks on a single object (spec §3, §6 glossary).
type MatchCondition struct {
	// Exists, when non-nil, requires the object to (not) exist.
	Exists *bool

	IfMatch           string
	IfNoneMatch       string
	IfVersionMatch    string
	IfVersionNotMatch string
	IfModifiedSince   *float64
	IfUnmodifiedSince *float64
}

// IsZero reports whether this condition carries no constraints at all,
// i.e. the operation should proceed unconditionally.
func (m MatchCondition) IsZero() bool {
	return m.Exists == nil && m.IfMatch == "" && m.IfNoneMatch == "" &&
		m.IfVersionMatch == "" && m.IfVersionNotMatch == "" &&
		m.IfModifiedSince == nil && m.IfUnmodifiedSince == nil
}

// CollectionStatus is the outcome of a collection lifecycle operation.
type CollectionStatus string

const (
	CollectionCreated   CollectionStatus = "CREATED"
	CollectionExists    CollectionStatus = "EXISTS"
	CollectionDropped   CollectionStatus = "DROPPED"
	CollectionNotExists CollectionStatus = "NOT_EXISTS"
)

// CollectionResult wraps the outcome of create/drop-collection calls.
type CollectionResult struct {
	Status CollectionStatus
}

// ObjectList is the paged result of a query operation.
type ObjectList struct {
	Items        []ObjectItem
	Continuation string
	Prefixes     []string
}

// ObjectBatchOp is a single operation within a batch (spec §4.2: currently
// restricted to homogeneous delete).
type ObjectBatchOp struct {
	Key   ObjectKey
	Where MatchCondition
}

// ObjectBatch is a homogeneous set of operations submitted atomically when
// the provider supports a native batch call.
type ObjectBatch struct {
	Kind string // "delete" is the only supported kind today
	Ops  []ObjectBatchOp
}

// ObjectBatchResult reports the per-key outcome of a batch call.
type ObjectBatchResult struct {
	Key   ObjectKey
	Error error
}
