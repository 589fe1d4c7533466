package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
	// Remote server connection; empty runs in-process
	APIUrl      string
	APITimeout  time.Duration
	APIUser     string
	APICACert   string
	APIInsecure bool
}

type StartFlags struct {
	JSON   bool
	Output string // write the standalone preview document here
}

type HistoryFlags struct {
	Limit int
}

type HashFlags struct {
	Password string
}
