package main

import (
	"testing"

	"github.com/buildrhq/codegen/pkg/types"
)

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    types.RepoRef
		shouldError bool
	}{
		{
			name:     "local project",
			input:    "local:proj-1",
			expected: types.LocalRepo("proj-1"),
		},
		{
			name:     "remote without branch",
			input:    "acme/shop",
			expected: types.RemoteRepo("acme", "shop", ""),
		},
		{
			name:     "remote with branch",
			input:    "acme/shop@develop",
			expected: types.RemoteRepo("acme", "shop", "develop"),
		},
		{
			name:        "empty",
			input:       "",
			shouldError: true,
		},
		{
			name:        "missing repo segment",
			input:       "acme",
			shouldError: true,
		},
		{
			name:        "empty owner",
			input:       "/shop",
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := parseRepoRef(tt.input)
			if tt.shouldError {
				if err == nil {
					t.Errorf("parseRepoRef(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRepoRef(%q) failed: %v", tt.input, err)
			}
			if ref != tt.expected {
				t.Errorf("parseRepoRef(%q) = %+v, expected %+v", tt.input, ref, tt.expected)
			}
		})
	}
}
