package metadata

import (
	"context"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/hafiz-io/hafiz/cmn"
)

var metaJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// BuntRepository is the embedded single-file Repository implementation
// spec.md §9's design note asks for as the concrete backend behind the
// abstract interface.
type BuntRepository struct {
	db *buntdb.DB
}

var _ Repository = (*BuntRepository)(nil)

// OpenBunt opens (creating if absent) a buntdb file at path. Pass ":memory:"
// for an ephemeral, test-only store.
func OpenBunt(path string) (*BuntRepository, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "open metadata store %q", path)
	}
	return &BuntRepository{db: db}, nil
}

func (r *BuntRepository) Close() error { return r.db.Close() }

func marshal(v interface{}) (string, error) {
	b, err := metaJSON.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- Credentials ------------------------------------------------------

func (r *BuntRepository) CreateCredential(_ context.Context, c Credential) error {
	doc, err := marshal(c)
	if err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "marshal credential")
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(credentialKey(c.AccessKey), doc, nil)
		return err
	})
}

func (r *BuntRepository) GetCredential(_ context.Context, accessKey string) (Credential, bool, error) {
	var c Credential
	found := false
	err := r.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(credentialKey(accessKey))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return metaJSON.UnmarshalFromString(val, &c)
	})
	if err != nil {
		return Credential{}, false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "get credential %q", accessKey)
	}
	return c, found, nil
}

func (r *BuntRepository) ListCredentials(_ context.Context) ([]Credential, error) {
	var out []Credential
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixCredential+"*", func(_, value string) bool {
			var c Credential
			if err := metaJSON.UnmarshalFromString(value, &c); err == nil {
				out = append(out, c)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list credentials")
	}
	return out, nil
}

func (r *BuntRepository) UpdateCredential(ctx context.Context, c Credential) error {
	return r.CreateCredential(ctx, c)
}

func (r *BuntRepository) DeleteCredential(_ context.Context, accessKey string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(credentialKey(accessKey))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// --- Buckets ------------------------------------------------------------

func (r *BuntRepository) CreateBucket(_ context.Context, b Bucket) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(bucketKey(b.Name)); err == nil {
			return cmn.ErrBucketAlreadyExists(b.Name)
		}
		doc, err := marshal(b)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(bucketKey(b.Name), doc, nil)
		return err
	})
}

func (r *BuntRepository) GetBucket(_ context.Context, name string) (Bucket, bool, error) {
	var b Bucket
	found := false
	err := r.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(bucketKey(name))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return metaJSON.UnmarshalFromString(val, &b)
	})
	if err != nil {
		return Bucket{}, false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "get bucket %q", name)
	}
	return b, found, nil
}

func (r *BuntRepository) ListBuckets(_ context.Context) ([]Bucket, error) {
	var out []Bucket
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixBucket+"*", func(_, value string) bool {
			var b Bucket
			if err := metaJSON.UnmarshalFromString(value, &b); err == nil {
				out = append(out, b)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list buckets")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *BuntRepository) DeleteBucket(_ context.Context, name string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(bucketKey(name))
		if err == buntdb.ErrNotFound {
			return cmn.ErrNoSuchBucket(name)
		}
		return err
	})
}

func (r *BuntRepository) mutateBucket(name string, mutate func(*Bucket) error) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(bucketKey(name))
		if err == buntdb.ErrNotFound {
			return cmn.ErrNoSuchBucket(name)
		}
		if err != nil {
			return err
		}
		var b Bucket
		if err := metaJSON.UnmarshalFromString(val, &b); err != nil {
			return err
		}
		if err := mutate(&b); err != nil {
			return err
		}
		doc, err := marshal(b)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(bucketKey(name), doc, nil)
		return err
	})
}

func (r *BuntRepository) SetVersioning(_ context.Context, bucket, status string) error {
	return r.mutateBucket(bucket, func(b *Bucket) error {
		b.Versioning = status
		return nil
	})
}

func (r *BuntRepository) SetBucketTags(_ context.Context, bucket string, tags map[string]string) error {
	return r.mutateBucket(bucket, func(b *Bucket) error {
		b.Tags = tags
		return nil
	})
}

func (r *BuntRepository) SetLifecycle(_ context.Context, bucket string, cfg *LifecycleConfig) error {
	return r.mutateBucket(bucket, func(b *Bucket) error {
		b.Lifecycle = cfg
		return nil
	})
}

func (r *BuntRepository) SetCORS(_ context.Context, bucket string, rules []CORSRule) error {
	return r.mutateBucket(bucket, func(b *Bucket) error {
		b.CORS = rules
		return nil
	})
}

func (r *BuntRepository) SetObjectLockEnabled(_ context.Context, bucket string, enabled bool) error {
	return r.mutateBucket(bucket, func(b *Bucket) error {
		b.ObjectLockEnabled = enabled
		return nil
	})
}

// --- Cluster roster ------------------------------------------------------

func (r *BuntRepository) UpsertClusterNode(_ context.Context, n ClusterNode) error {
	doc, err := marshal(n)
	if err != nil {
		return cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "marshal cluster node")
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(nodeKey(n.NodeID), doc, nil)
		return err
	})
}

func (r *BuntRepository) GetClusterNode(_ context.Context, nodeID string) (ClusterNode, bool, error) {
	var n ClusterNode
	found := false
	err := r.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(nodeKey(nodeID))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return metaJSON.UnmarshalFromString(val, &n)
	})
	if err != nil {
		return ClusterNode{}, false, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "get cluster node %q", nodeID)
	}
	return n, found, nil
}

func (r *BuntRepository) ListClusterNodes(_ context.Context) ([]ClusterNode, error) {
	var out []ClusterNode
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixNode+"*", func(_, value string) bool {
			var n ClusterNode
			if err := metaJSON.UnmarshalFromString(value, &n); err == nil {
				out = append(out, n)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.Wrap(err, "InternalError", 500, cmn.KindStorage, "list cluster nodes")
	}
	return out, nil
}

func (r *BuntRepository) RemoveClusterNode(_ context.Context, nodeID string) error {
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(nodeKey(nodeID))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// ascendPrefix is a small AscendKeys helper shared by the versions and
// multipart scans below.
func ascendPrefix(tx *buntdb.Tx, prefix string, fn func(key, value string) bool) error {
	return tx.AscendKeys(prefix+"*", func(key, value string) bool {
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		return fn(key, value)
	})
}
