package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lixenwraith/auth"

	httptransport "chessbot/internal/transport/http"
)

const secret = "cli-test-secret-of-at-least-32-chars"

func TestDBInitQueryDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	var out bytes.Buffer

	if err := Run([]string{"init", "-path", path}, &out); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "Database initialized") {
		t.Errorf("init output %q", out.String())
	}

	out.Reset()
	if err := Run([]string{"query", "-path", path, "-identity", "*"}, &out); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out.String(), "No games found") {
		t.Errorf("query output %q", out.String())
	}

	if err := Run([]string{"pgn", "-path", path, "-gameId", "missing"}, &out); err == nil {
		t.Error("pgn of a missing game succeeded")
	}

	out.Reset()
	if err := Run([]string{"delete", "-path", path}, &out); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer
	for _, args := range [][]string{nil, {"vacuum"}, {"init"}} {
		if err := Run(args, &out); err == nil {
			t.Errorf("Run(%v) succeeded", args)
		}
	}
}

func TestToken(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		subject   string
		wantScope bool
	}{
		{"per identity", []string{"-subject", "12345"}, "12345", false},
		{"front end", []string{"-all"}, "gateway", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := Token(append(tt.args, "-secret", secret), &out); err != nil {
				t.Fatalf("Token: %v", err)
			}
			subject, claims, err := auth.ValidateHS256Token([]byte(secret), strings.TrimSpace(out.String()))
			if err != nil {
				t.Fatalf("ValidateHS256Token: %v", err)
			}
			if subject != tt.subject {
				t.Errorf("subject = %q, want %q", subject, tt.subject)
			}
			scope, _ := claims["scope"].(string)
			if (scope == httptransport.ScopeAll) != tt.wantScope {
				t.Errorf("scope claim = %q", scope)
			}
		})
	}
}

func TestTokenErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	var out bytes.Buffer
	for _, args := range [][]string{
		{"-secret", secret},
		{"-subject", "u1", "-secret", "short"},
		{"-subject", "u1"},
		{"-subject", "u1", "-ttl", "-1h", "-secret", secret},
	} {
		if err := Token(args, &out); err == nil {
			t.Errorf("Token(%v) succeeded", args)
		}
	}
}
