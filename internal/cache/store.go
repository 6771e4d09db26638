// Package cache is the local document cache: the last known document of
// every module, when it was last confirmed by the gateway, and which modules
// have local changes the gateway has not acknowledged yet. The whole state is
// mirrored into durable local storage after every mutation.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/localstore"
)

// Entry is a cached document. SyncedAt is zero until the document has been
// fetched from or confirmed by the gateway.
type Entry struct {
	Doc      json.RawMessage
	SyncedAt time.Time
	Version  uint64
}

type entry struct {
	doc      json.RawMessage
	syncedAt int64 // epoch ms
	version  uint64
}

// Options configures a Store
type Options struct {
	// Namespace prefixes every storage key
	Namespace string
	// ExtraPrefixes are wiped from storage by ClearAll as well
	ExtraPrefixes []string
	Now           func() time.Time
	Logger        *zap.Logger
}

// Store is safe for concurrent use
type Store struct {
	mu       sync.Mutex
	storage  localstore.Storage
	ns       string
	extra    []string
	entries  map[string]*entry
	pending  *PendingSet
	workMode string
	version  uint64
	now      func() time.Time
	log      *zap.Logger
}

// persisted layout of the <ns>_cache key
type blob struct {
	Cache     [][2]json.RawMessage `json:"cache"`
	SyncTimes [][2]json.RawMessage `json:"syncTimes"`
	Timestamp int64                `json:"timestamp"`
}

// Open prepares the cache for a new session. The previously persisted cache
// is discarded so the session starts from server truth, except for the
// documents of pending ids: those are local changes the server has not seen
// and are restored together with their sync times. A pending id whose
// document is missing from the persisted cache is dropped, since there is
// nothing left to push. The work mode preference is reloaded as well.
func Open(storage localstore.Storage, opts Options) (*Store, error) {
	if opts.Namespace == "" {
		opts.Namespace = "frameworkModular"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		storage: storage,
		ns:      opts.Namespace,
		extra:   opts.ExtraPrefixes,
		entries: make(map[string]*entry),
		pending: NewPendingSet(),
		now:     opts.Now,
		log:     opts.Logger.Named("cache"),
	}

	raw, ok, err := storage.Get(s.PendingKey())
	if err != nil {
		return nil, fmt.Errorf("load pending set: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), s.pending); err != nil {
			s.log.Warn("ignoring unreadable pending set", zap.Error(err))
			s.pending = NewPendingSet()
		}
	}

	if err := s.restorePending(); err != nil {
		return nil, err
	}

	mode, ok, err := storage.Get(s.WorkModeKey())
	if err != nil {
		return nil, fmt.Errorf("load work mode: %w", err)
	}
	if ok {
		s.workMode = mode
	}

	return s, nil
}

// restorePending loads the persisted documents of pending ids and rewrites
// the cache key so it holds nothing else.
func (s *Store) restorePending() error {
	raw, ok, err := s.storage.Get(s.CacheKey())
	if err != nil {
		return fmt.Errorf("load persisted cache: %w", err)
	}

	if ok && s.pending.Len() > 0 {
		docs, times, err := DecodeBlob(raw)
		if err != nil {
			s.log.Warn("ignoring unreadable persisted cache", zap.Error(err))
		}
		for _, id := range s.pending.List() {
			doc, found := docs[id]
			if !found {
				continue
			}
			s.entries[id] = &entry{doc: clone(doc), syncedAt: times[id], version: s.nextVersion()}
		}
	}

	var dropped []string
	for _, id := range s.pending.List() {
		if _, found := s.entries[id]; !found {
			s.pending.Remove(id)
			dropped = append(dropped, id)
		}
	}
	if len(dropped) > 0 {
		s.log.Warn("pending ids without a cached document dropped", zap.Strings("modules", dropped))
	}

	if len(s.entries) == 0 {
		if len(dropped) > 0 {
			if err := s.storage.Remove(s.PendingKey()); err != nil {
				return fmt.Errorf("discard pending set: %w", err)
			}
		}
		if err := s.storage.Remove(s.CacheKey()); err != nil {
			return fmt.Errorf("discard persisted cache: %w", err)
		}
		return nil
	}

	s.log.Info("pending writes restored", zap.Strings("modules", s.pending.List()))
	s.persistLocked()
	return nil
}

// Keys names the storage keys of a namespace
type Keys struct {
	Cache    string
	Pending  string
	WorkMode string
}

func KeysFor(namespace string) Keys {
	return Keys{
		Cache:    namespace + "_cache",
		Pending:  namespace + "_pending",
		WorkMode: namespace + "_workMode",
	}
}

func (s *Store) CacheKey() string    { return KeysFor(s.ns).Cache }
func (s *Store) PendingKey() string  { return KeysFor(s.ns).Pending }
func (s *Store) WorkModeKey() string { return KeysFor(s.ns).WorkMode }

// Get returns the cached entry for id
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.export(), true
}

// Has reports whether id has a cached document
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Write stores a local change and marks id pending. It returns the new
// version of the entry.
func (s *Store) Write(id string, doc json.RawMessage) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.doc = clone(doc)
	e.version = s.nextVersion()
	s.pending.Add(id)
	s.persistLocked()
	return e.version
}

// Seed stores a document obtained from the gateway or the default provider
// and stamps it with at.
func (s *Store) Seed(id string, doc json.RawMessage, at time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.seedLocked(id, doc, at)
	s.persistLocked()
	return v
}

// SeedIfAbsent seeds id unless a document appeared meanwhile. It returns the
// entry that is cached afterwards and whether the seed was applied.
func (s *Store) SeedIfAbsent(id string, doc json.RawMessage, at time.Time) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.export(), false
	}
	s.seedLocked(id, doc, at)
	s.persistLocked()
	return s.entries[id].export(), true
}

// ApplyRefresh replaces the document with a fresher server copy, but only if
// nothing touched the entry since version expect and it has no unconfirmed
// local change.
func (s *Store) ApplyRefresh(id string, doc json.RawMessage, expect uint64, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.version != expect || s.pending.Has(id) {
		return false
	}
	s.seedLocked(id, doc, at)
	s.persistLocked()
	return true
}

// MarkSynced records that version of id reached the gateway at at. The id
// leaves the pending set only if no newer local write happened meanwhile.
func (s *Store) MarkSynced(id string, version uint64, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if ms := at.UnixMilli(); ms > e.syncedAt {
		e.syncedAt = ms
	}
	cleared := false
	if e.version == version && s.pending.Has(id) {
		s.pending.Remove(id)
		cleared = true
	}
	s.persistLocked()
	return cleared
}

// Forget drops id from the pending set without a confirmed write. Used for
// ids that have nothing cached to push.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return
	}
	s.pending.Remove(id)
	s.persistLocked()
}

// ClearAll empties the cache, the pending set and every storage key under
// the namespace (and the extra prefixes).
func (s *Store) ClearAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.pending.Clear()
	s.workMode = ""

	prefixes := append([]string{s.ns + "_"}, s.extra...)
	n, err := localstore.RemovePrefixed(s.storage, prefixes...)
	if err != nil {
		return n, fmt.Errorf("clear local storage: %w", err)
	}
	s.log.Info("local cache cleared", zap.Int("storage_keys_removed", n))
	return n, nil
}

// Pending returns the pending ids, sorted
func (s *Store) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.List()
}

func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *Store) IsPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Has(id)
}

// Snapshot copies every cached document
func (s *Store) Snapshot() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.entries))
	for id, e := range s.entries {
		out[id] = clone(e.doc)
	}
	return out
}

// IDs returns the cached ids, sorted
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WorkMode returns the stored work mode preference ("" when unset)
func (s *Store) WorkMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workMode
}

func (s *Store) SetWorkMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(s.WorkModeKey(), mode); err != nil {
		return fmt.Errorf("persist work mode: %w", err)
	}
	s.workMode = mode
	return nil
}

func (s *Store) seedLocked(id string, doc json.RawMessage, at time.Time) uint64 {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.doc = clone(doc)
	if ms := at.UnixMilli(); ms > e.syncedAt {
		e.syncedAt = ms
	}
	e.version = s.nextVersion()
	return e.version
}

func (s *Store) nextVersion() uint64 {
	s.version++
	return s.version
}

// persistLocked mirrors the whole cache and the pending set into storage.
// Failures are logged; the in-memory state stays authoritative.
func (s *Store) persistLocked() {
	if err := s.writeBlobLocked(); err != nil {
		s.log.Error("failed to persist cache", zap.Error(err))
	}

	var err error
	if s.pending.Len() > 0 {
		var raw []byte
		raw, err = json.Marshal(s.pending)
		if err == nil {
			err = s.storage.Set(s.PendingKey(), string(raw))
		}
	} else {
		err = s.storage.Remove(s.PendingKey())
	}
	if err != nil {
		s.log.Error("failed to persist pending set", zap.Error(err))
	}
}

func (s *Store) writeBlobLocked() error {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b := blob{
		Cache:     make([][2]json.RawMessage, 0, len(ids)),
		SyncTimes: make([][2]json.RawMessage, 0, len(ids)),
		Timestamp: s.now().UnixMilli(),
	}
	for _, id := range ids {
		e := s.entries[id]
		key, err := json.Marshal(id)
		if err != nil {
			return err
		}
		b.Cache = append(b.Cache, [2]json.RawMessage{key, e.doc})
		if e.syncedAt > 0 {
			b.SyncTimes = append(b.SyncTimes, [2]json.RawMessage{key, json.RawMessage(fmt.Sprint(e.syncedAt))})
		}
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.storage.Set(s.CacheKey(), string(raw))
}

func (e *entry) export() Entry {
	out := Entry{Doc: clone(e.doc), Version: e.version}
	if e.syncedAt > 0 {
		out.SyncedAt = time.UnixMilli(e.syncedAt)
	}
	return out
}

func clone(doc json.RawMessage) json.RawMessage {
	if doc == nil {
		return nil
	}
	return append(json.RawMessage(nil), doc...)
}

// ErrUnknownBlob is returned by DecodeBlob for data that is not a cache blob
var ErrUnknownBlob = errors.New("not a cache blob")

// DecodeBlob parses a persisted cache blob into documents and sync times
// (epoch ms)
func DecodeBlob(raw string) (map[string]json.RawMessage, map[string]int64, error) {
	var b blob
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnknownBlob, err)
	}
	docs := make(map[string]json.RawMessage, len(b.Cache))
	for _, pair := range b.Cache {
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnknownBlob, err)
		}
		docs[id] = pair[1]
	}
	times := make(map[string]int64, len(b.SyncTimes))
	for _, pair := range b.SyncTimes {
		var id string
		var ms int64
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnknownBlob, err)
		}
		if err := json.Unmarshal(pair[1], &ms); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnknownBlob, err)
		}
		times[id] = ms
	}
	return docs, times, nil
}
