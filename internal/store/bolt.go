package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/reconcile"
)

var (
	nodesBucket   = []byte("nodes")
	contentBucket = []byte("content")
)

// Bolt is the embedded bbolt-backed store. One nested bucket of JSON-encoded
// nodes per document, plus a flat bucket for raw content.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the database file.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(nodesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(contentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error { return s.db.Close() }

func (s *Bolt) Nodes(ctx context.Context, docID string) ([]fragment.Node, error) {
	var nodes []fragment.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucket).Bucket([]byte(docID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var n fragment.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("decode node: %w", err)
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].SortOrder < nodes[j].SortOrder })
	return nodes, nil
}

func (s *Bolt) Content(ctx context.Context, docID string) (string, error) {
	var content string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(contentBucket).Get([]byte(docID)); v != nil {
			content = string(v)
		}
		return nil
	})
	return content, err
}

func (s *Bolt) Apply(ctx context.Context, docID, content string, changes []reconcile.Change) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(nodesBucket).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return fmt.Errorf("document bucket: %w", err)
		}
		for _, ch := range changes {
			switch ch.Op {
			case reconcile.OpInsert:
				if ch.Node == nil {
					return fmt.Errorf("insert without node")
				}
				n := *ch.Node
				if n.ID == "" {
					n.ID = uuid.NewString()
				}
				if err := putNode(b, n); err != nil {
					return err
				}
			case reconcile.OpUpdate:
				v := b.Get([]byte(ch.ID))
				if v == nil {
					return fmt.Errorf("update %s: node not found", ch.ID)
				}
				var n fragment.Node
				if err := json.Unmarshal(v, &n); err != nil {
					return fmt.Errorf("decode node %s: %w", ch.ID, err)
				}
				if ch.Diff != nil {
					ch.Diff.ApplyTo(&n)
				}
				if err := putNode(b, n); err != nil {
					return err
				}
			case reconcile.OpDelete:
				if err := b.Delete([]byte(ch.ID)); err != nil {
					return fmt.Errorf("delete %s: %w", ch.ID, err)
				}
			default:
				return fmt.Errorf("unknown change op %q", ch.Op)
			}
		}
		return tx.Bucket(contentBucket).Put([]byte(docID), []byte(content))
	})
}

func (s *Bolt) UpdateMetadata(ctx context.Context, docID, nodeID string, patch MetaPatch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucket).Bucket([]byte(docID))
		if b == nil {
			return fmt.Errorf("document %s: not found", docID)
		}
		v := b.Get([]byte(nodeID))
		if v == nil {
			return fmt.Errorf("node %s: not found", nodeID)
		}
		var n fragment.Node
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("decode node %s: %w", nodeID, err)
		}
		if patch.Status != nil {
			n.Status = *patch.Status
		}
		if patch.Tags != nil {
			n.Tags = *patch.Tags
		}
		if patch.WordGoal != nil {
			n.WordGoal = *patch.WordGoal
		}
		return putNode(b, n)
	})
}

func putNode(b *bolt.Bucket, n fragment.Node) error {
	v, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return b.Put([]byte(n.ID), v)
}
