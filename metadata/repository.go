package metadata

import "context"

// ListObjectsResult is the paged response for a prefix/delimiter listing.
type ListObjectsResult struct {
	Versions        []Version
	CommonPrefixes  []string
	NextToken       string
	IsTruncated     bool
}

// ListVersionsResult is the paged response for ListObjectVersions.
type ListVersionsResult struct {
	Versions           []Version
	NextKeyMarker      string
	NextVersionMarker  string
	IsTruncated        bool
}

// Repository is the abstract metadata store spec.md §9 asks for: the object
// service and every other component hold only this interface, never the
// concrete backend.
type Repository interface {
	// Credentials
	CreateCredential(ctx context.Context, c Credential) error
	GetCredential(ctx context.Context, accessKey string) (Credential, bool, error)
	ListCredentials(ctx context.Context) ([]Credential, error)
	UpdateCredential(ctx context.Context, c Credential) error
	DeleteCredential(ctx context.Context, accessKey string) error

	// Buckets
	CreateBucket(ctx context.Context, b Bucket) error
	GetBucket(ctx context.Context, name string) (Bucket, bool, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)
	DeleteBucket(ctx context.Context, name string) error
	SetVersioning(ctx context.Context, bucket, status string) error
	SetBucketTags(ctx context.Context, bucket string, tags map[string]string) error
	SetLifecycle(ctx context.Context, bucket string, cfg *LifecycleConfig) error
	SetCORS(ctx context.Context, bucket string, rules []CORSRule) error
	SetObjectLockEnabled(ctx context.Context, bucket string, enabled bool) error

	// Object versions
	InsertVersion(ctx context.Context, v Version) error
	GetLatestVersion(ctx context.Context, bucket, key string) (Version, bool, error)
	GetVersion(ctx context.Context, bucket, key, versionID string) (Version, bool, error)
	ListObjects(ctx context.Context, bucket, prefix, delimiter, continuationToken string, maxKeys int) (ListObjectsResult, error)
	ListVersions(ctx context.Context, bucket, prefix, keyMarker, versionIDMarker string, maxKeys int) (ListVersionsResult, error)
	DeleteVersion(ctx context.Context, bucket, key, versionID string) error
	CreateDeleteMarker(ctx context.Context, bucket, key string, marker Version) error
	SetVersionTags(ctx context.Context, bucket, key, versionID string, tags map[string]string) error
	SetRetention(ctx context.Context, bucket, key, versionID string, r *Retention) error
	SetLegalHold(ctx context.Context, bucket, key, versionID string, hold bool) error

	// ListAllVersions supports the lifecycle engine's enumeration step
	// (spec.md §4.8).
	ListAllVersions(ctx context.Context, bucket string) ([]Version, error)

	// Multipart
	CreateMultipartSession(ctx context.Context, s MultipartSession) error
	GetMultipartSession(ctx context.Context, bucket, uploadID string) (MultipartSession, bool, error)
	ListMultipartSessions(ctx context.Context, bucket string) ([]MultipartSession, error)
	PutPart(ctx context.Context, bucket, uploadID string, part MultipartPart) error
	DeleteMultipartSession(ctx context.Context, bucket, uploadID string) error

	// Cluster roster
	UpsertClusterNode(ctx context.Context, n ClusterNode) error
	GetClusterNode(ctx context.Context, nodeID string) (ClusterNode, bool, error)
	ListClusterNodes(ctx context.Context) ([]ClusterNode, error)
	RemoveClusterNode(ctx context.Context, nodeID string) error

	Close() error
}
