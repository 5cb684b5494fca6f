//go:build ignore

package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muurk/wbms/internal/protocol"
)

// CapturedFrame is one line of a JSONL capture
type CapturedFrame struct {
	Timestamp string `json:"timestamp"`
	DeviceID  uint8  `json:"device_id"`
	Direction string `json:"direction"`
	FrameHex  string `json:"frame_hex"`
}

// Statistics tracks decode results
type Statistics struct {
	TotalFrames   int
	TotalFiles    int
	DecodeSuccess int
	DecodeFailure int
	BadChecks     int
	MessageTypes  map[protocol.MessageType]int
	Failures      []Failure
}

// Failure stores information about a frame that did not decode
type Failure struct {
	File       string
	LineNumber int
	FrameHex   string
	Error      string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_frames <directory-or-file>")
		fmt.Println("Example: validate_frames captures/")
		fmt.Println("         validate_frames rig-20261012.jsonl")
		fmt.Println("Lines are either bare hex frames or JSON objects with a frame_hex field.")
		os.Exit(1)
	}

	path := os.Args[1]
	stats := Statistics{MessageTypes: make(map[protocol.MessageType]int)}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	var files []string
	if info.IsDir() {
		for _, pattern := range []string{"*.jsonl", "*.hex"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				fmt.Printf("Error finding capture files: %v\n", err)
				os.Exit(1)
			}
			files = append(files, matches...)
		}
		if len(files) == 0 {
			fmt.Printf("No capture files found in %s\n", path)
			os.Exit(1)
		}
	} else {
		files = []string{path}
	}

	fmt.Printf("=== wBMS Frame Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
	if stats.DecodeFailure > 0 || stats.BadChecks > 0 {
		os.Exit(1)
	}
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading file %s: %v\n", filename, err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		frameHex := line
		if strings.HasPrefix(line, "{") {
			var c CapturedFrame
			if err := json.Unmarshal([]byte(line), &c); err != nil {
				fmt.Printf("Error parsing JSON in %s line %d: %v\n", filename, lineNum, err)
				continue
			}
			frameHex = c.FrameHex
		}

		stats.TotalFrames++
		fail := func(msg string) {
			stats.DecodeFailure++
			stats.Failures = append(stats.Failures, Failure{
				File:       filename,
				LineNumber: lineNum,
				FrameHex:   frameHex,
				Error:      msg,
			})
		}

		raw, err := hex.DecodeString(strings.ReplaceAll(frameHex, " ", ""))
		if err != nil {
			fail(fmt.Sprintf("hex decode error: %v", err))
			continue
		}

		d, err := protocol.Describe(raw)
		if err != nil {
			fail(fmt.Sprintf("frame error: %v", err))
			continue
		}
		failed := false
		for _, field := range d.Fields {
			if field.Name == "error" || field.Name == "length_mismatch" {
				fail(fmt.Sprintf("%s: %s", field.Name, field.Value))
				failed = true
				break
			}
		}
		if failed {
			continue
		}

		stats.DecodeSuccess++
		stats.MessageTypes[d.Header.MessageType]++
		if !d.CheckValid {
			stats.BadChecks++
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error scanning %s: %v\n", filename, err)
	}
}

func printStatistics(stats *Statistics) {
	fmt.Printf("Files processed: %d\n", stats.TotalFiles)
	fmt.Printf("Frames:          %d\n", stats.TotalFrames)
	fmt.Printf("Decoded:         %d\n", stats.DecodeSuccess)
	fmt.Printf("Failed:          %d\n", stats.DecodeFailure)
	fmt.Printf("Bad checks:      %d\n\n", stats.BadChecks)

	types := make([]protocol.MessageType, 0, len(stats.MessageTypes))
	for t := range stats.MessageTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Println("Message types:")
	for _, t := range types {
		fmt.Printf("  %-24s %d\n", t, stats.MessageTypes[t])
	}

	if len(stats.Failures) > 0 {
		fmt.Println("\nFailures:")
		for _, f := range stats.Failures {
			fmt.Printf("  %s:%d %s\n    %s\n", f.File, f.LineNumber, f.Error, f.FrameHex)
		}
	}
}
