package identity

import (
	"os"
	"path/filepath"
	"testing"
)

type staticSource struct {
	kind SourceKind
	id   int
	ok   bool
}

func (s staticSource) Kind() SourceKind     { return s.kind }
func (s staticSource) TryRead() (int, bool) { return s.id, s.ok }

func TestResolvePriorityOrder(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		session    int
		hasSession bool
		local      int
		hasLocal   bool
		wantID     int
		wantSource SourceKind
	}{
		{
			name:       "cookie wins over everything",
			cookie:     "userId=42",
			session:    7,
			hasSession: true,
			local:      9,
			hasLocal:   true,
			wantID:     42,
			wantSource: SourceCookie,
		},
		{
			name:       "session wins when cookie absent",
			cookie:     "",
			session:    7,
			hasSession: true,
			local:      9,
			hasLocal:   true,
			wantID:     7,
			wantSource: SourceSession,
		},
		{
			name:       "local is the last resort",
			cookie:     "",
			local:      9,
			hasLocal:   true,
			wantID:     9,
			wantSource: SourceLocal,
		},
		{
			name:       "everything empty falls back to guest",
			cookie:     "",
			wantID:     0,
			wantSource: SourceNone,
		},
		{
			name:       "malformed cookie falls through",
			cookie:     "userId=abc",
			session:    7,
			hasSession: true,
			wantID:     7,
			wantSource: SourceSession,
		},
		{
			name:       "negative cookie value falls through",
			cookie:     "userId=-3",
			local:      9,
			hasLocal:   true,
			wantID:     9,
			wantSource: SourceLocal,
		},
		{
			name:       "cookie guest sentinel still wins",
			cookie:     "userId=0",
			session:    7,
			hasSession: true,
			wantID:     0,
			wantSource: SourceCookie,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie := NewCookieSource(tt.cookie)
			session := NewSessionSource()
			if tt.hasSession {
				session.Set(tt.session)
			}
			local := NewLocalSource(filepath.Join(t.TempDir(), "auth.json"))
			if tt.hasLocal {
				if err := local.Set(tt.local); err != nil {
					t.Fatalf("seed local store: %v", err)
				}
			}

			id := NewResolver(cookie, session, local).Resolve()
			if id.UserID != tt.wantID {
				t.Errorf("Resolve().UserID = %d, want %d", id.UserID, tt.wantID)
			}
			if id.Source != tt.wantSource {
				t.Errorf("Resolve().Source = %q, want %q", id.Source, tt.wantSource)
			}
		})
	}
}

func TestCookieValueDecoding(t *testing.T) {
	cookie := NewCookieSource("theme=dark; userId=15; lang=en")
	id, ok := cookie.TryRead()
	if !ok || id != 15 {
		t.Fatalf("TryRead() = (%d, %v), want (15, true)", id, ok)
	}

	cookie.SetHeader("userId=%2042%20")
	id, ok = cookie.TryRead()
	if !ok || id != 42 {
		t.Fatalf("TryRead() after url-encoded header = (%d, %v), want (42, true)", id, ok)
	}
}

func TestIsAuthenticated(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		want    bool
	}{
		{
			name:    "cookie present with positive id",
			sources: []Source{NewCookieSource("userId=5")},
			want:    true,
		},
		{
			name:    "no cookie source at all",
			sources: []Source{staticSource{kind: SourceSession, id: 5, ok: true}},
			want:    false,
		},
		{
			name: "cookie absent, positive weaker store does not count",
			sources: []Source{
				NewCookieSource(""),
				staticSource{kind: SourceLocal, id: 5, ok: true},
			},
			want: false,
		},
		{
			name:    "cookie holds guest sentinel",
			sources: []Source{NewCookieSource("userId=0")},
			want:    false,
		},
		{
			name: "malformed cookie present but resolves from weaker store",
			sources: []Source{
				NewCookieSource("userId=abc"),
				staticSource{kind: SourceLocal, id: 5, ok: true},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewResolver(tt.sources...).IsAuthenticated(); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogoutClearsEveryStore(t *testing.T) {
	cookie := NewCookieSource("userId=11")
	session := NewSessionSource()
	session.Set(11)
	local := NewLocalSource(filepath.Join(t.TempDir(), "auth.json"))
	if err := local.Set(11); err != nil {
		t.Fatalf("seed local store: %v", err)
	}

	r := NewResolver(cookie, session, local)
	if !r.IsAuthenticated() {
		t.Fatal("expected authenticated before logout")
	}

	r.Logout()

	if id := r.Resolve(); id.UserID != 0 || id.Source != SourceNone {
		t.Errorf("Resolve() after logout = %+v, want guest", id)
	}
	if r.IsAuthenticated() {
		t.Error("expected unauthenticated after logout")
	}
}

func TestLocalSourceTolerantOfCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	local := NewLocalSource(path)
	if _, ok := local.TryRead(); ok {
		t.Fatal("missing file should read as absent")
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, ok := local.TryRead(); ok {
		t.Fatal("corrupt file should read as absent")
	}

	if err := local.Set(3); err != nil {
		t.Fatalf("Set() after corruption: %v", err)
	}
	id, ok := local.TryRead()
	if !ok || id != 3 {
		t.Fatalf("TryRead() = (%d, %v), want (3, true)", id, ok)
	}
}
