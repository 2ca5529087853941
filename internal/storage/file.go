package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// entryTimeLayout is the wall-clock stamp heading each entry.
const entryTimeLayout = "15:04:05.000000"

var entryHeaderRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{6}:$`)

// fileStore writes one text file per day in dir. The handle of the current
// day is cached and swapped when a new day key arrives.
type fileStore struct {
	log logx.Logger
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

func openFile(cfg Config, log logx.Logger, now func() time.Time) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir, now: now}, nil
}

func (s *fileStore) pathFor(day string) string {
	return filepath.Join(s.dir, "log_"+day+".txt")
}

func (s *fileStore) AppendLog(ctx context.Context, day, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDay(day); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil || s.day != day {
		if s.f != nil {
			if err := s.f.Close(); err != nil {
				s.log.Warn("closing audit file failed", logx.String("day", s.day), logx.Err(err))
			}
			s.f = nil
		}
		f, err := os.OpenFile(s.pathFor(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		s.f, s.day = f, day
		s.log.Debug("audit file opened", logx.String("path", f.Name()))
	}
	_, err := fmt.Fprintf(s.f, "%s:\n%s\n", s.now().Format(entryTimeLayout), text)
	return err
}

func (s *fileStore) ReadDay(ctx context.Context, day string) ([]Entry, error) {
	if err := checkDay(day); err != nil {
		return nil, err
	}
	f, err := os.Open(s.pathFor(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	date, _ := time.ParseInLocation(time.DateOnly, day, time.Local)
	var (
		out  []Entry
		cur  *Entry
		body []string
	)
	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(body, "\n")
			out = append(out, *cur)
		}
		cur, body = nil, nil
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := sc.Text()
		if entryHeaderRe.MatchString(line) {
			flush()
			t, _ := time.Parse(entryTimeLayout, strings.TrimSuffix(line, ":"))
			at := time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
			cur = &Entry{Day: day, At: at}
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()
	return out, sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
