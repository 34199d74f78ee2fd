// Package keystore persists per-peer security records: the keys and the
// security metadata negotiated during pairing. Records are keyed by the hex
// encoded peer address and survive restarts via a JSON file.
package keystore

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Find when no record exists for the address.
var ErrNotFound = errors.New("keystore: record not found")

// SecurityRecord is the persisted bundle of keys for one bonded peer.
// Key material is in wire order. A zero-length key slice means the peer
// never distributed that key.
type SecurityRecord struct {
	// Addr is the peer address the record is keyed by, 12 hex digits.
	Addr string

	LongTermKey []byte
	EDiv        uint16
	Rand        uint64

	// LocalLongTermKey and friends are the values this side distributed, kept
	// for when the link is re-encrypted with reversed roles.
	LocalLongTermKey []byte
	LocalEDiv        uint16
	LocalRand        uint64

	KeySize int
	Legacy  bool
	// Authenticated is true when the pairing used an authenticated
	// association model (passkey entry, numeric comparison or OOB).
	Authenticated bool

	IdentityResolvingKey []byte
	IdentityAddr         string

	SigningKey      []byte
	LocalSigningKey []byte
	// LocalSignCounter counts messages signed with our CSRK,
	// PeerSignCounter the lowest counter the peer may still use.
	LocalSignCounter uint32
	PeerSignCounter  uint32

	LinkKey []byte
}

// Store is the security record database consumed by the pairing engine.
// Implementations must be safe for concurrent use.
type Store interface {
	Find(addr string) (*SecurityRecord, error)
	Save(addr string, rec *SecurityRecord) error
	Delete(addr string) error
	Exists(addr string) bool
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fileStore struct {
	lock sync.RWMutex
	path string
}

type recordFile struct {
	Records []storedRecord `json:"records"`
}

type storedRecord struct {
	Address     string `json:"address"`
	LongTermKey string `json:"longTermKey,omitempty"`
	EDiv        uint16 `json:"encryptionDiversifier,omitempty"`
	Rand        uint64 `json:"randomValue,omitempty"`

	LocalLongTermKey string `json:"localLongTermKey,omitempty"`
	LocalEDiv        uint16 `json:"localEncryptionDiversifier,omitempty"`
	LocalRand        uint64 `json:"localRandomValue,omitempty"`

	KeySize       int  `json:"keySize,omitempty"`
	Legacy        bool `json:"legacy,omitempty"`
	Authenticated bool `json:"authenticated,omitempty"`

	IdentityResolvingKey string `json:"identityResolvingKey,omitempty"`
	IdentityAddr         string `json:"identityAddress,omitempty"`

	SigningKey       string `json:"signingKey,omitempty"`
	LocalSigningKey  string `json:"localSigningKey,omitempty"`
	LocalSignCounter uint32 `json:"localSignCounter,omitempty"`
	PeerSignCounter  uint32 `json:"peerSignCounter,omitempty"`

	LinkKey string `json:"linkKey,omitempty"`
}

// NewFileStore returns a Store backed by a single JSON file at path. The file
// is created on first save.
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func validAddr(addr string) bool {
	return len(addr) == 12
}

func (s *fileStore) Exists(addr string) bool {
	if !validAddr(addr) {
		return false
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	rf, err := s.load()
	if err != nil {
		return false
	}

	for _, r := range rf.Records {
		if r.Address == addr {
			return true
		}
	}

	return false
}

func (s *fileStore) Find(addr string) (*SecurityRecord, error) {
	if !validAddr(addr) {
		return nil, errors.Errorf("keystore: invalid address %q", addr)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	rf, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, r := range rf.Records {
		if r.Address == addr {
			return decodeRecord(r)
		}
	}

	return nil, ErrNotFound
}

func (s *fileStore) Save(addr string, rec *SecurityRecord) error {
	if !validAddr(addr) {
		return errors.Errorf("keystore: invalid address %q", addr)
	}
	if rec == nil {
		return errors.New("keystore: empty record")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	rf, err := s.load()
	if err != nil {
		return err
	}

	sr := encodeRecord(rec)
	sr.Address = addr

	// re-pairing replaces the previous record
	replaced := false
	for i, r := range rf.Records {
		if r.Address == addr {
			rf.Records[i] = sr
			replaced = true
			break
		}
	}
	if !replaced {
		rf.Records = append(rf.Records, sr)
	}

	return s.store(rf)
}

func (s *fileStore) Delete(addr string) error {
	if !validAddr(addr) {
		return errors.Errorf("keystore: invalid address %q", addr)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	rf, err := s.load()
	if err != nil {
		return err
	}

	kept := rf.Records[:0]
	for _, r := range rf.Records {
		if r.Address != addr {
			kept = append(kept, r)
		}
	}
	rf.Records = kept

	return s.store(rf)
}

func encodeRecord(rec *SecurityRecord) storedRecord {
	return storedRecord{
		LongTermKey:          hex.EncodeToString(rec.LongTermKey),
		EDiv:                 rec.EDiv,
		Rand:                 rec.Rand,
		LocalLongTermKey:     hex.EncodeToString(rec.LocalLongTermKey),
		LocalEDiv:            rec.LocalEDiv,
		LocalRand:            rec.LocalRand,
		KeySize:              rec.KeySize,
		Legacy:               rec.Legacy,
		Authenticated:        rec.Authenticated,
		IdentityResolvingKey: hex.EncodeToString(rec.IdentityResolvingKey),
		IdentityAddr:         rec.IdentityAddr,
		SigningKey:           hex.EncodeToString(rec.SigningKey),
		LocalSigningKey:      hex.EncodeToString(rec.LocalSigningKey),
		LocalSignCounter:     rec.LocalSignCounter,
		PeerSignCounter:      rec.PeerSignCounter,
		LinkKey:              hex.EncodeToString(rec.LinkKey),
	}
}

func decodeRecord(r storedRecord) (*SecurityRecord, error) {
	ltk, err := hex.DecodeString(r.LongTermKey)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: long term key")
	}
	lltk, err := hex.DecodeString(r.LocalLongTermKey)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: local long term key")
	}
	irk, err := hex.DecodeString(r.IdentityResolvingKey)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: identity resolving key")
	}
	csrk, err := hex.DecodeString(r.SigningKey)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: signing key")
	}
	lcsrk, err := hex.DecodeString(r.LocalSigningKey)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: local signing key")
	}
	lk, err := hex.DecodeString(r.LinkKey)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: link key")
	}

	return &SecurityRecord{
		Addr:                 r.Address,
		LongTermKey:          ltk,
		EDiv:                 r.EDiv,
		Rand:                 r.Rand,
		LocalLongTermKey:     lltk,
		LocalEDiv:            r.LocalEDiv,
		LocalRand:            r.LocalRand,
		KeySize:              r.KeySize,
		Legacy:               r.Legacy,
		Authenticated:        r.Authenticated,
		IdentityResolvingKey: irk,
		IdentityAddr:         r.IdentityAddr,
		SigningKey:           csrk,
		LocalSigningKey:      lcsrk,
		LocalSignCounter:     r.LocalSignCounter,
		PeerSignCounter:      r.PeerSignCounter,
		LinkKey:              lk,
	}, nil
}

func (s *fileStore) load() (*recordFile, error) {
	var rf recordFile

	fileData, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &rf, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "keystore: read")
	}

	if len(fileData) > 0 {
		if err := json.Unmarshal(fileData, &rf); err != nil {
			return nil, errors.Wrap(err, "keystore: unmarshal")
		}
	}

	return &rf, nil
}

func (s *fileStore) store(rf *recordFile) error {
	out, err := json.Marshal(rf)
	if err != nil {
		return errors.Wrap(err, "keystore: marshal")
	}

	if err := ioutil.WriteFile(s.path, out, 0600); err != nil {
		return errors.Wrap(err, "keystore: write")
	}

	return nil
}
