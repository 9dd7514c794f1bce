package main

import (
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"migrate"},
		{"credentials", "list"},
		{"credentials", "add"},
		{"credentials", "reset"},
		{"credentials", "disable"},
		{"credits", "grant"},
		{"credits", "show"},
		{"queue", "stats"},
		{"reap"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Fatalf("command %v not found: %v", path, err)
		}
	}
}

func TestGrantRejectsBadAmountBeforeConnecting(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	for _, amount := range []string{"abc", "0", "-5"} {
		root := newRootCmd()
		root.SetArgs([]string{"credits", "grant", "--", "u1", amount})
		root.SetOut(&strings.Builder{})
		root.SetErr(&strings.Builder{})
		err := root.Execute()
		if err == nil || !strings.Contains(err.Error(), "positive integer") {
			t.Fatalf("amount %q: expected argument error, got %v", amount, err)
		}
	}
}
