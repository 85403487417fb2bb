// Package registry owns all relay state: users, messages, and the pin→user
// mapping. Every mutating operation that must be durable rewrites the full
// snapshot file; readers never observe a partial write.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/relayhub/relay/internal/pin"
	"go.uber.org/zap"
)

// snapshot is the durable form of the registry. Entity records are keyed by
// id and stored without it; existing data.json files keep loading unchanged.
type snapshot struct {
	NextMessageID int                    `json:"message_id"`
	NextUserID    int                    `json:"user_id"`
	Messages      map[int]*messageRecord `json:"messages"`
	Users         map[int]*userRecord    `json:"users"`
	Pins          map[string]int         `json:"pins"`
}

type userRecord struct {
	Name     string `json:"name"`
	Online   bool   `json:"online"`
	Endpoint string `json:"endpoint"`
}

type messageRecord struct {
	From      int    `json:"from"`
	To        int    `json:"to"`
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
}

// Registry is the single owned aggregate of relay state. All methods are safe
// for concurrent use; each method is one uninterrupted unit of work, so id
// allocation is strictly increasing and collision-free.
type Registry struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger

	nextMessageID int
	nextUserID    int
	users         map[int]*userRecord
	messages      map[int]*messageRecord
	pins          map[string]int
	pinGen        *pin.Generator
}

// Load reconstructs the registry from the snapshot at path, or starts fresh
// with counters at 1 if no snapshot exists. The pin generator is seeded with
// every pin in the snapshot so restarts cannot issue duplicates.
func Load(path string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		path:          path,
		logger:        logger,
		nextMessageID: 1,
		nextUserID:    1,
		users:         make(map[int]*userRecord),
		messages:      make(map[int]*messageRecord),
		pins:          make(map[string]int),
		pinGen:        pin.NewGenerator(),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	r.nextMessageID = snap.NextMessageID
	r.nextUserID = snap.NextUserID
	if snap.Users != nil {
		r.users = snap.Users
	}
	if snap.Messages != nil {
		r.messages = snap.Messages
	}
	if snap.Pins != nil {
		r.pins = snap.Pins
	}

	// Counters must stay strictly greater than any stored id, even if the
	// snapshot was hand-edited.
	for id := range r.users {
		if id >= r.nextUserID {
			r.nextUserID = id + 1
		}
	}
	for id := range r.messages {
		if id >= r.nextMessageID {
			r.nextMessageID = id + 1
		}
	}
	for p := range r.pins {
		r.pinGen.Seed(p)
	}

	logger.Info("registry loaded",
		zap.String("path", path),
		zap.Int("users", len(r.users)),
		zap.Int("messages", len(r.messages)))
	return r, nil
}

// AddUser allocates a user id, stores the user offline, binds a fresh pin and
// persists. The returned pin is the user's bearer credential.
func (r *Registry) AddUser(endpoint, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.pinGen.Get()
	id := r.nextUserID
	r.nextUserID++
	r.users[id] = &userRecord{Name: name, Online: false, Endpoint: endpoint}
	r.pins[p] = id

	r.logger.Info("user added",
		zap.Int("user_id", id),
		zap.String("name", name),
		zap.String("endpoint", endpoint))

	if err := r.dumpLocked(); err != nil {
		return "", err
	}
	return p, nil
}

// GetUsers returns all users in id order, or only those matching the online
// filter when it is non-nil.
func (r *Registry) GetUsers(online *bool) []User {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]User, 0, len(r.users))
	for id, rec := range r.users {
		if online != nil && rec.Online != *online {
			continue
		}
		users = append(users, userFromRecord(id, rec))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// GetUserByPin resolves pin→id→user. The second return is false if the pin is
// unknown.
func (r *Registry) GetUserByPin(p string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.pins[p]
	if !ok {
		return User{}, false
	}
	return r.userByIDLocked(id)
}

// GetUserByID returns the user with the given id.
func (r *Registry) GetUserByID(id int) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userByIDLocked(id)
}

// AddMessage allocates a message id, stores it undelivered and persists.
func (r *Registry) AddMessage(from, to User, text string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextMessageID
	r.nextMessageID++
	rec := &messageRecord{From: from.ID, To: to.ID, Text: text, Delivered: false}
	r.messages[id] = rec

	r.logger.Info("message added",
		zap.Int("message_id", id),
		zap.Int("from", from.ID),
		zap.Int("to", to.ID))

	if err := r.dumpLocked(); err != nil {
		return Message{}, err
	}
	return messageFromRecord(id, rec), nil
}

// GetMessages returns every message where the user is sender or recipient, in
// id order, regardless of delivery status.
func (r *Registry) GetMessages(user User) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := make([]Message, 0)
	for id, rec := range r.messages {
		if rec.From == user.ID || rec.To == user.ID {
			msgs = append(msgs, messageFromRecord(id, rec))
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs
}

// SetUserOnline mutates a single user's online flag. It does not persist;
// callers decide when to snapshot.
func (r *Registry) SetUserOnline(id int, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.users[id]; ok {
		rec.Online = online
	}
}

// SetMessageDelivered mutates a single message's delivered flag. It does not
// persist; callers decide when to snapshot.
func (r *Registry) SetMessageDelivered(id int, delivered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.messages[id]; ok {
		rec.Delivered = delivered
	}
}

// Dump serializes the full state to the snapshot file.
func (r *Registry) Dump() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dumpLocked()
}

// dumpLocked writes the snapshot via a temp file and rename so a concurrent
// reader of the data file never observes a partial write.
func (r *Registry) dumpLocked() error {
	snap := snapshot{
		NextMessageID: r.nextMessageID,
		NextUserID:    r.nextUserID,
		Messages:      r.messages,
		Users:         r.users,
		Pins:          r.pins,
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".data-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (r *Registry) userByIDLocked(id int) (User, bool) {
	rec, ok := r.users[id]
	if !ok {
		return User{}, false
	}
	return userFromRecord(id, rec), true
}

func userFromRecord(id int, rec *userRecord) User {
	return User{ID: id, Name: rec.Name, Endpoint: rec.Endpoint, Online: rec.Online}
}

func messageFromRecord(id int, rec *messageRecord) Message {
	return Message{ID: id, From: rec.From, To: rec.To, Text: rec.Text, Delivered: rec.Delivered}
}
