package main

import "testing"

func TestBuildRootSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"serve":        false,
		"status":       false,
		"relays":       false,
		"transitions":  false,
		"check-config": false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestServeRequiresConfig(t *testing.T) {
	if err := runServe(&ServeFlags{}, nil); err == nil {
		t.Fatal("expected error when no config is given")
	}
}
