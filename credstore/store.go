package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("credstore: no stored credentials")

var (
	bucketName = []byte("credentials")
	keyCurrent = []byte("current")
)

// Credentials is what survives a restart: the bearer token and the user id.
type Credentials struct {
	Token  string    `json:"token"`
	UserID string    `json:"userId"`
	SaveAt time.Time `json:"saveAt"`
}

// Store persists credentials in a bbolt file.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(c *Credentials) error {
	if c.SaveAt.IsZero() {
		c.SaveAt = time.Now()
	}
	value, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(keyCurrent, value)
	})
}

func (s *Store) Load() (*Credentials, error) {
	var c Credentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketName).Get(keyCurrent)
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Clear removes the stored credentials. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(keyCurrent)
	})
	if err == nil {
		glog.V(5).Info("credstore: cleared")
	}
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
