package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.etcd.io/bbolt"

	"github.com/mqy/minichat/wire"
)

var (
	chatsBucket = []byte("chats") // chat key -> seq -> record
	indexBucket = []byte("index") // message id -> chat key + seq
)

// record is the stored form of a message.
type record struct {
	Message wire.Message `json:"m"`
	// HiddenFor lists users who deleted the message for themselves.
	HiddenFor []string `json:"h,omitempty"`
}

// BoltStore implements `IMessageStore` on a bbolt file.
type BoltStore struct {
	*bbolt.DB
}

var _ IMessageStore = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{chatsBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db}, nil
}

// withTx runs exec in a read-write transaction unless the context is done.
func (s *BoltStore) withTx(ctx context.Context, exec func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Update(exec)
}

func (s *BoltStore) withView(ctx context.Context, exec func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.View(exec)
}

func getRecord(b *bbolt.Bucket, seq []byte) (*record, error) {
	v := b.Get(seq)
	if v == nil {
		return nil, ErrNotFound
	}
	var r record
	if err := json.Unmarshal(v, &r); err != nil {
		glog.Errorf("store: decode record err: %v", err)
		return nil, err
	}
	return &r, nil
}

func putRecord(b *bbolt.Bucket, seq []byte, r *record) error {
	v, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.Put(seq, v)
}

// locate finds the chat bucket and sequence of message id.
func locate(tx *bbolt.Tx, id string) (*bbolt.Bucket, []byte, []byte, error) {
	v := tx.Bucket(indexBucket).Get([]byte(id))
	if v == nil {
		return nil, nil, nil, ErrNotFound
	}
	chat, seq := splitIndexValue(v)
	b := tx.Bucket(chatsBucket).Bucket(chat)
	if b == nil {
		return nil, nil, nil, ErrNotFound
	}
	return b, chat, append([]byte(nil), seq...), nil
}

func (s *BoltStore) Save(ctx context.Context, m *wire.Message) error {
	if m.ID == "" {
		return fmt.Errorf("store: save message without id")
	}
	return s.withTx(ctx, func(tx *bbolt.Tx) error {
		index := tx.Bucket(indexBucket)
		if index.Get([]byte(m.ID)) != nil {
			return fmt.Errorf("store: duplicate message id %s", m.ID)
		}
		chat := chatKey(string(m.Sender), string(m.Receiver))
		b, err := tx.Bucket(chatsBucket).CreateBucketIfNotExists(chat)
		if err != nil {
			return err
		}
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq := itob(n)
		if err := putRecord(b, seq, &record{Message: *m}); err != nil {
			return err
		}
		return index.Put([]byte(m.ID), indexValue(chat, seq))
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (*wire.Message, error) {
	var out *wire.Message
	err := s.withView(ctx, func(tx *bbolt.Tx) error {
		b, _, seq, err := locate(tx, id)
		if err != nil {
			return err
		}
		r, err := getRecord(b, seq)
		if err != nil {
			return err
		}
		out = &r.Message
		return nil
	})
	return out, err
}

func (s *BoltStore) History(ctx context.Context, uid, peer string) ([]wire.Message, error) {
	out := []wire.Message{}
	err := s.withView(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket(chatsBucket).Bucket(chatKey(uid, peer))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if !contains(r.HiddenFor, uid) {
				out = append(out, r.Message)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) SetDelivered(ctx context.Context, id string) (bool, error) {
	var changed bool
	err := s.withTx(ctx, func(tx *bbolt.Tx) error {
		b, _, seq, err := locate(tx, id)
		if err != nil {
			return err
		}
		r, err := getRecord(b, seq)
		if err != nil {
			return err
		}
		next := r.Message.Status.Upgrade(wire.StatusDelivered)
		if next == r.Message.Status {
			return nil
		}
		r.Message.Status = next
		changed = true
		return putRecord(b, seq, r)
	})
	return changed, err
}

func (s *BoltStore) DeliverPending(ctx context.Context, uid string) (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.withTx(ctx, func(tx *bbolt.Tx) error {
		chats := tx.Bucket(chatsBucket)
		var keys [][]byte
		if err := chats.ForEach(func(k, _ []byte) error {
			if a, b := splitChatKey(k); a == uid || b == uid {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := updateEach(chats.Bucket(k), func(r *record) bool {
				m := &r.Message
				if string(m.Receiver) != uid || m.Status.Rank() >= wire.StatusDelivered.Rank() {
					return false
				}
				m.Status = wire.StatusDelivered
				out[string(m.Sender)] = append(out[string(m.Sender)], m.ID)
				return true
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) MarkSeen(ctx context.Context, reader, from string) ([]string, error) {
	var ids []string
	err := s.withTx(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket(chatsBucket).Bucket(chatKey(reader, from))
		if b == nil {
			return nil
		}
		return updateEach(b, func(r *record) bool {
			m := &r.Message
			if string(m.Sender) != from || string(m.Receiver) != reader || m.Status == wire.StatusSeen {
				return false
			}
			m.Status = wire.StatusSeen
			ids = append(ids, m.ID)
			return true
		})
	})
	return ids, err
}

func (s *BoltStore) Delete(ctx context.Context, id, uid, mode string) (*wire.Message, error) {
	var out *wire.Message
	err := s.withTx(ctx, func(tx *bbolt.Tx) error {
		b, _, seq, err := locate(tx, id)
		if err != nil {
			return err
		}
		r, err := getRecord(b, seq)
		if err != nil {
			return err
		}
		m := r.Message
		if !m.Involves(uid) {
			return ErrForbidden
		}
		out = &m

		switch mode {
		case wire.ModeEveryone:
			if string(m.Sender) != uid {
				return ErrForbidden
			}
			if err := b.Delete(seq); err != nil {
				return err
			}
			return tx.Bucket(indexBucket).Delete([]byte(id))
		case wire.ModeMe, "":
			if contains(r.HiddenFor, uid) {
				return nil
			}
			r.HiddenFor = append(r.HiddenFor, uid)
			return putRecord(b, seq, r)
		default:
			return fmt.Errorf("store: unknown delete mode `%s`", mode)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Clear(ctx context.Context, uid, peer, mode string) error {
	return s.withTx(ctx, func(tx *bbolt.Tx) error {
		chats := tx.Bucket(chatsBucket)
		key := chatKey(uid, peer)
		b := chats.Bucket(key)
		if b == nil {
			return nil
		}
		switch mode {
		case wire.ModeEveryone:
			index := tx.Bucket(indexBucket)
			if err := b.ForEach(func(_, v []byte) error {
				var r record
				if err := json.Unmarshal(v, &r); err != nil {
					return err
				}
				return index.Delete([]byte(r.Message.ID))
			}); err != nil {
				return err
			}
			return chats.DeleteBucket(key)
		case wire.ModeMe, "":
			return updateEach(b, func(r *record) bool {
				if contains(r.HiddenFor, uid) {
					return false
				}
				r.HiddenFor = append(r.HiddenFor, uid)
				return true
			})
		default:
			return fmt.Errorf("store: unknown clear mode `%s`", mode)
		}
	})
}

// updateEach rewrites the records for which fn returns true.
func updateEach(b *bbolt.Bucket, fn func(r *record) bool) error {
	type change struct {
		seq []byte
		r   *record
	}
	var changes []change
	if err := b.ForEach(func(k, v []byte) error {
		var r record
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if fn(&r) {
			changes = append(changes, change{seq: append([]byte(nil), k...), r: &r})
		}
		return nil
	}); err != nil {
		return err
	}
	// bbolt forbids mutating a bucket while iterating it.
	for _, c := range changes {
		if err := putRecord(b, c.seq, c.r); err != nil {
			return err
		}
	}
	return nil
}
