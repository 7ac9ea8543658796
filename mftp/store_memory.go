package mftp

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemStore is a mutex-guarded in-memory FileStore. It backs the unit tests
// and is good enough for throwaway servers; real deployments use mongostore.
type MemStore struct {
	mutex sync.Mutex
	seq   int
	files map[string]*memRecord
	users map[string]string
}

type memRecord struct {
	FileRecord
	pendingRename bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		files: make(map[string]*memRecord),
		users: make(map[string]string),
	}
}

func (s *MemStore) AddUser(username, passwordHash string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.users[username] = passwordHash
}

func (s *MemStore) FindByOwner(owner string) ([]FileRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records := make([]FileRecord, 0)
	for _, r := range s.files {
		if r.Owner == owner {
			records = append(records, r.FileRecord)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Filename < records[j].Filename })
	return records, nil
}

func (s *MemStore) FindByName(filename string) (*FileRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, r := range s.files {
		if r.Filename == filename {
			record := r.FileRecord
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemStore) FindByNameAndOwner(filename, owner string) (*FileRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, r := range s.files {
		if r.Filename == filename && r.Owner == owner {
			record := r.FileRecord
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemStore) FindPendingRename(owner string) (*FileRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, r := range s.files {
		if r.pendingRename && r.Owner == owner {
			record := r.FileRecord
			return &record, nil
		}
	}
	return nil, nil
}

func (s *MemStore) Store(content []byte, meta FileMeta) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.seq++
	id := strconv.Itoa(s.seq)
	stored := make([]byte, len(content))
	copy(stored, content)

	s.files[id] = &memRecord{
		FileRecord: FileRecord{
			ID:         id,
			Filename:   meta.Filename,
			Owner:      meta.Owner,
			Group:      meta.Group,
			Size:       int64(len(content)),
			ModifiedAt: meta.ModifiedAt,
			Content:    stored,
		},
	}
	return id, nil
}

func (s *MemStore) Remove(filename, owner string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := int64(0)
	for id, r := range s.files {
		if r.Filename == filename && r.Owner == owner {
			delete(s.files, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemStore) RemoveID(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.files, id)
	return nil
}

func (s *MemStore) RenameTo(id, newName string, clearPending bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.files[id]
	if !ok {
		return errRecordNotFound
	}

	r.Filename = newName
	r.ModifiedAt = time.Now()
	if clearPending {
		r.pendingRename = false
	}
	return nil
}

func (s *MemStore) MarkPendingRename(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.files[id]
	if !ok {
		return errRecordNotFound
	}
	r.pendingRename = true
	return nil
}

func (s *MemStore) ClearPendingRename(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.files[id]
	if !ok {
		return errRecordNotFound
	}
	r.pendingRename = false
	return nil
}

func (s *MemStore) LookupUser(username string) (*User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	hash, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &User{Username: username, PasswordHash: hash}, nil
}
