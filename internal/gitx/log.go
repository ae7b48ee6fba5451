package gitx

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// LogEntry is one commit as reported by git log.
type LogEntry struct {
	ID        string
	Parents   []string
	Tree      string
	Author    Signature
	Committer Signature
	Message   string
}

// LogOptions narrows a Log walk.
type LogOptions struct {
	// Path restricts the walk to commits touching this path.
	Path string
	// Author restricts the walk to commits whose author line contains this
	// fixed string (typically an email).
	Author string
	// Limit caps the number of entries; zero means unlimited.
	Limit int
}

const (
	fieldSep  = "\x1f"
	logFormat = "%H%x1f%P%x1f%T%x1f%an%x1f%ae%x1f%at%x1f%cn%x1f%ce%x1f%ct%x1f%B"
)

// Log streams commits reachable from rev, newest first. The walk runs lazily:
// the git process is started when iteration begins and killed as soon as the
// consumer stops. Each range over the sequence starts a fresh walk.
func (r *Repository) Log(ctx context.Context, rev string, opts LogOptions) iter.Seq2[LogEntry, error] {
	return func(yield func(LogEntry, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		args := []string{"log", "-z", "--no-color", "--format=" + logFormat}
		if opts.Limit > 0 {
			args = append(args, "-n", strconv.Itoa(opts.Limit))
		}
		if opts.Author != "" {
			args = append(args, "--fixed-strings", "--author="+opts.Author)
		}
		args = append(args, rev)
		if opts.Path != "" {
			args = append(args, "--", opts.Path)
		}

		cmd := r.Command(ctx, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(LogEntry{}, err)
			return
		}
		if err := cmd.Start(); err != nil {
			yield(LogEntry{}, err)
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
		scanner.Split(splitNUL)

		for scanner.Scan() {
			record := strings.TrimPrefix(scanner.Text(), "\n")
			if record == "" {
				continue
			}
			entry, err := parseLogEntry(record)
			if !yield(entry, err) {
				cancel()
				_ = cmd.Wait()
				return
			}
		}

		scanErr := scanner.Err()
		waitErr := cmd.Wait()
		switch {
		case scanErr != nil:
			yield(LogEntry{}, scanErr)
		case waitErr != nil && ctx.Err() == nil:
			yield(LogEntry{}, &Error{Args: args, Dir: r.dir, Stderr: strings.TrimSpace(stderr.String()), Err: waitErr})
		case waitErr != nil:
			yield(LogEntry{}, ctx.Err())
		}
	}
}

// Commit reads a single commit.
func (r *Repository) Commit(ctx context.Context, rev string) (LogEntry, error) {
	for entry, err := range r.Log(ctx, rev, LogOptions{Limit: 1}) {
		return entry, err
	}
	return LogEntry{}, fmt.Errorf("%w: %s", ErrUnknownRevision, rev)
}

func parseLogEntry(record string) (LogEntry, error) {
	parts := strings.SplitN(record, fieldSep, 10)
	if len(parts) != 10 {
		return LogEntry{}, fmt.Errorf("malformed log record: %d fields", len(parts))
	}
	authored, err := parseUnix(parts[5])
	if err != nil {
		return LogEntry{}, err
	}
	committed, err := parseUnix(parts[8])
	if err != nil {
		return LogEntry{}, err
	}
	return LogEntry{
		ID:        parts[0],
		Parents:   strings.Fields(parts[1]),
		Tree:      parts[2],
		Author:    Signature{Person: Person{Name: parts[3], Email: parts[4]}, When: authored},
		Committer: Signature{Person: Person{Name: parts[6], Email: parts[7]}, When: committed},
		Message:   strings.TrimRight(parts[9], "\n"),
	}, nil
}

func parseUnix(s string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return time.Unix(n, 0).UTC(), nil
}

func splitNUL(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
