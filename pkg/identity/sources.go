package identity

import (
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	cookieUserKey  = "userId"
	sessionUserKey = "userId"
	localUserKey   = "user_id"
)

// localAuxKeys mirror the cached profile values kept in the durable store.
var localAuxKeys = []string{"user_email", "user_role", "user_logged_in"}

func parseUserID(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// CookieSource reads the identifier from an HTTP cookie header. The header
// is re-parsed on every read; cookie values are URL-decoded the way the
// backend encodes them.
type CookieSource struct {
	mu     sync.RWMutex
	header string
}

func NewCookieSource(cookieHeader string) *CookieSource {
	return &CookieSource{header: cookieHeader}
}

func (s *CookieSource) Kind() SourceKind { return SourceCookie }

func (s *CookieSource) TryRead() (int, bool) {
	raw, ok := s.value(cookieUserKey)
	if !ok {
		return 0, false
	}
	return parseUserID(raw)
}

// SetHeader replaces the backing cookie header, e.g. after a login response.
func (s *CookieSource) SetHeader(header string) {
	s.mu.Lock()
	s.header = header
	s.mu.Unlock()
}

func (s *CookieSource) Clear() {
	s.mu.Lock()
	s.header = ""
	s.mu.Unlock()
}

func (s *CookieSource) value(name string) (string, bool) {
	s.mu.RLock()
	header := s.header
	s.mu.RUnlock()

	for _, part := range strings.Split(header, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || k != name {
			continue
		}
		if decoded, err := url.QueryUnescape(v); err == nil {
			v = decoded
		}
		return v, v != ""
	}
	return "", false
}

// SessionSource is the per-tab ephemeral store: values live for the process
// lifetime only and expire like a browser session.
type SessionSource struct {
	store *cache.Cache
}

func NewSessionSource() *SessionSource {
	return &SessionSource{store: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (s *SessionSource) Kind() SourceKind { return SourceSession }

func (s *SessionSource) TryRead() (int, bool) {
	v, found := s.store.Get(sessionUserKey)
	if !found {
		return 0, false
	}
	raw, ok := v.(string)
	if !ok {
		return 0, false
	}
	return parseUserID(raw)
}

func (s *SessionSource) Set(userID int) {
	s.store.Set(sessionUserKey, strconv.Itoa(userID), cache.NoExpiration)
}

func (s *SessionSource) Clear() {
	s.store.Flush()
}

// LocalSource is the durable cross-session store, persisted as a small JSON
// map on disk. Reads tolerate a missing or corrupt file.
type LocalSource struct {
	mu   sync.Mutex
	path string
}

func NewLocalSource(path string) *LocalSource {
	return &LocalSource{path: path}
}

func (s *LocalSource) Kind() SourceKind { return SourceLocal }

func (s *LocalSource) TryRead() (int, bool) {
	values := s.load()
	raw, found := values[localUserKey]
	if !found {
		return 0, false
	}
	return parseUserID(raw)
}

func (s *LocalSource) Set(userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadLocked()
	values[localUserKey] = strconv.Itoa(userID)
	return s.saveLocked(values)
}

func (s *LocalSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadLocked()
	delete(values, localUserKey)
	for _, k := range localAuxKeys {
		delete(values, k)
	}
	_ = s.saveLocked(values)
}

func (s *LocalSource) load() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *LocalSource) loadLocked() map[string]string {
	values := map[string]string{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return values
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return map[string]string{}
	}
	return values
}

func (s *LocalSource) saveLocked(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
