package main

import (
	"os"
	"strings"
	"testing"
)

func TestParseArgsEnvModes(t *testing.T) {
	cfg, err := parseArgs([]string{
		"--env", "A=1", "B=2",
		"--append-env", "PATH_LIKE=/opt/bin",
		"--", "mytest", "--env", "-v",
	})
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if cfg.env["A"] != "1" || cfg.env["B"] != "2" {
		t.Errorf("env = %v", cfg.env)
	}
	if cfg.appendEnv["PATH_LIKE"] != "/opt/bin" {
		t.Errorf("appendEnv = %v", cfg.appendEnv)
	}
	// Everything after -- is the command, flags included.
	want := []string{"mytest", "--env", "-v"}
	if len(cfg.command) != len(want) {
		t.Fatalf("command = %v, want %v", cfg.command, want)
	}
	for i := range want {
		if cfg.command[i] != want[i] {
			t.Fatalf("command = %v, want %v", cfg.command, want)
		}
	}
}

func TestParseArgsErrors(t *testing.T) {
	cases := [][]string{
		{"stray"},                    // positional without a mode
		{"--env", "NOEQUALS"},        // malformed assignment
		{"--append-env", "=empty"},   // empty name
		{"--env-file"},               // missing value
		{"--watch"},                  // missing value
		{"--min-version"},            // missing value
		{""},                         // empty argument
	}
	for _, args := range cases {
		if _, err := parseArgs(args); err == nil {
			t.Errorf("parseArgs(%v) accepted invalid input", args)
		}
	}
}

func TestParseArgsFlags(t *testing.T) {
	cfg, err := parseArgs([]string{"--version"})
	if err != nil || !cfg.showVer {
		t.Errorf("--version not recognized: %v", err)
	}
	cfg, err = parseArgs([]string{"--help"})
	if err != nil || !cfg.showHelp {
		t.Errorf("--help not recognized: %v", err)
	}
	cfg, err = parseArgs([]string{
		"--env-file", "test.env",
		"--watch", "./pkg",
		"--min-version", ">= 0.1.0",
		"--", "true",
	})
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if len(cfg.envFiles) != 1 || cfg.envFiles[0] != "test.env" {
		t.Errorf("envFiles = %v", cfg.envFiles)
	}
	if len(cfg.watchPaths) != 1 || cfg.watchPaths[0] != "./pkg" {
		t.Errorf("watchPaths = %v", cfg.watchPaths)
	}
	if cfg.minVersion != ">= 0.1.0" {
		t.Errorf("minVersion = %q", cfg.minVersion)
	}
}

func TestApplyEnvSetsAndAppends(t *testing.T) {
	const setKey = "ALLOCGUARD_RUNNER_TEST_SET"
	const appKey = "ALLOCGUARD_RUNNER_TEST_APPEND"
	t.Setenv(setKey, "old")
	t.Setenv(appKey, "/first")

	cfg := &config{
		env:       map[string]string{setKey: "new"},
		appendEnv: map[string]string{appKey: "/second"},
	}
	if err := applyEnv(cfg); err != nil {
		t.Fatalf("applyEnv failed: %v", err)
	}

	if got := os.Getenv(setKey); got != "new" {
		t.Errorf("%s = %q, want %q", setKey, got, "new")
	}
	sep := string(os.PathListSeparator)
	if got := os.Getenv(appKey); got != "/first"+sep+"/second" {
		t.Errorf("%s = %q, want %q", appKey, got, "/first"+sep+"/second")
	}
}

func TestApplyEnvAppendToEmpty(t *testing.T) {
	const key = "ALLOCGUARD_RUNNER_TEST_EMPTY"
	t.Setenv(key, "")

	cfg := &config{
		env:       map[string]string{},
		appendEnv: map[string]string{key: "/only"},
	}
	if err := applyEnv(cfg); err != nil {
		t.Fatalf("applyEnv failed: %v", err)
	}
	if got := os.Getenv(key); got != "/only" {
		t.Errorf("%s = %q, want %q", key, got, "/only")
	}
}

func TestApplyEnvMissingEnvFile(t *testing.T) {
	cfg := &config{
		env:       map[string]string{},
		appendEnv: map[string]string{},
		envFiles:  []string{"does-not-exist.env"},
	}
	err := applyEnv(cfg)
	if err == nil || !strings.Contains(err.Error(), "env file") {
		t.Errorf("missing env file not reported: %v", err)
	}
}
