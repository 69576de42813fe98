// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package filestore keeps uploaded files for a limited time. Payloads live
// on disk, the index lives in memory and is lost on restart.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/metrics"
	"github.com/ddoffy/mobile-trackpad/internal/util"
)

const (
	DefaultTTL      = time.Hour
	DefaultGrace    = 10 * time.Minute
	DefaultMaxBytes = 50 << 20

	// sniffLen is what filetype needs to recognise every type it knows.
	sniffLen   = 261
	tempPrefix = ".upload-"
	tempSuffix = ".tmp"
)

var (
	// ErrNotFound is returned for unknown or expired ids.
	ErrNotFound = errors.New("file not found")
	// ErrTooLarge is wrapped in a StorageError when an upload exceeds the limit.
	ErrTooLarge = errors.New("upload exceeds size limit")
	// ErrInsufficientSpace is wrapped in a StorageError when the disk is too full.
	ErrInsufficientSpace = errors.New("insufficient disk space")
)

// StorageError reports a failed store. Nothing of the payload remains on
// disk or in the index when it is returned.
type StorageError struct {
	Op     string
	Status int
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FileRecord describes one stored file.
type FileRecord struct {
	ID          string
	Filename    string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

// Options configures a Store. Zero values select defaults.
type Options struct {
	Dir      string
	TTL      time.Duration
	Grace    time.Duration
	MaxBytes int64
	// MinFree is the free space that must remain on the upload volume
	// before an upload is accepted. Zero disables the check.
	MinFree uint64
	// Clock overrides time.Now.
	Clock func() time.Time
	// FreeSpace overrides the disk usage probe.
	FreeSpace func(dir string) (uint64, error)
}

type entry struct {
	rec  FileRecord
	path string
	refs int
}

// Store is the file index. All index mutations go through mu; disk I/O
// happens outside it.
type Store struct {
	dir       string
	ttl       time.Duration
	grace     time.Duration
	maxBytes  int64
	minFree   uint64
	now       func() time.Time
	freeSpace func(string) (uint64, error)

	mu    sync.Mutex
	files map[string]*entry
}

// New prepares dir and removes whatever a previous run left in it.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("filestore: directory is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	} else if opts.Grace == 0 {
		opts.Grace = DefaultGrace
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = diskFree
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := checkPrivate(opts.Dir); err != nil {
		return nil, err
	}

	s := &Store{
		dir:       opts.Dir,
		ttl:       opts.TTL,
		grace:     opts.Grace,
		maxBytes:  opts.MaxBytes,
		minFree:   opts.MinFree,
		now:       opts.Clock,
		freeSpace: opts.FreeSpace,
		files:     make(map[string]*entry),
	}
	if n, err := s.purge(); err != nil {
		return nil, err
	} else if n > 0 {
		logging.Info("removed leftover uploads", zap.String("dir", s.dir), zap.Int("count", n))
	}
	metrics.SetFilesStored(0)
	return s, nil
}

func diskFree(dir string) (uint64, error) {
	u, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

func (s *Store) purge() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !ownedName(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			n++
		}
	}
	return n, nil
}

// checkPrivate refuses an upload dir other users can write to.
func checkPrivate(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat upload dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("upload dir %s is not a directory", dir)
	}
	// windows reports 0777 for every directory
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o022 != 0 {
		return fmt.Errorf("upload dir %s is writable by other users (mode %04o)", dir, fi.Mode().Perm())
	}
	return nil
}

// ownedName reports whether name is a payload or temp file this store writes.
func ownedName(name string) bool {
	if strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix) {
		return true
	}
	_, err := uuid.Parse(name)
	return err == nil && len(name) == 36
}

// Dir returns the payload directory.
func (s *Store) Dir() string { return s.dir }

// TTL returns the configured time to live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put streams r to disk and indexes it under a fresh id. The record only
// becomes visible once the payload is complete.
func (s *Store) Put(ctx context.Context, filename string, r io.Reader) (FileRecord, error) {
	if s.minFree > 0 {
		free, err := s.freeSpace(s.dir)
		if err != nil {
			logging.Warn("disk usage probe failed", zap.Error(err))
		} else if free < s.minFree {
			return FileRecord{}, &StorageError{Op: "store", Status: http.StatusInsufficientStorage, Err: ErrInsufficientSpace}
		}
	}

	filename = util.SafeFilename(filename)
	id := uuid.NewString()

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*"+tempSuffix)
	if err != nil {
		return FileRecord{}, &StorageError{Op: "create", Status: http.StatusInternalServerError, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FileRecord{}, &StorageError{Op: "read", Status: http.StatusInternalServerError, Err: err}
	}
	head = head[:n]
	if int64(n) > s.maxBytes {
		return FileRecord{}, &StorageError{Op: "store", Status: http.StatusRequestEntityTooLarge, Err: ErrTooLarge}
	}
	if _, err := tmp.Write(head); err != nil {
		return FileRecord{}, &StorageError{Op: "write", Status: http.StatusInternalServerError, Err: err}
	}

	// one extra byte tells an exact fit apart from an oversized payload
	rest := io.LimitReader(&ctxReader{ctx: ctx, r: r}, s.maxBytes-int64(n)+1)
	copied, err := io.Copy(tmp, rest)
	if err != nil {
		return FileRecord{}, &StorageError{Op: "write", Status: http.StatusInternalServerError, Err: err}
	}
	size := int64(n) + copied
	if size > s.maxBytes {
		return FileRecord{}, &StorageError{Op: "store", Status: http.StatusRequestEntityTooLarge, Err: ErrTooLarge}
	}
	if err := tmp.Sync(); err != nil {
		return FileRecord{}, &StorageError{Op: "sync", Status: http.StatusInternalServerError, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return FileRecord{}, &StorageError{Op: "close", Status: http.StatusInternalServerError, Err: err}
	}
	dest := filepath.Join(s.dir, id)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return FileRecord{}, &StorageError{Op: "rename", Status: http.StatusInternalServerError, Err: err}
	}
	committed = true

	rec := FileRecord{
		ID:          id,
		Filename:    filename,
		Size:        size,
		ContentType: detectType(head, filename),
		UploadedAt:  s.now(),
	}
	s.mu.Lock()
	s.files[id] = &entry{rec: rec, path: dest}
	count := len(s.files)
	s.mu.Unlock()
	metrics.SetFilesStored(count)
	return rec, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func detectType(head []byte, filename string) string {
	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if len(head) > 0 {
		if t := http.DetectContentType(head); !strings.HasPrefix(t, "application/octet-stream") {
			return t
		}
	}
	return "application/octet-stream"
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.rec.UploadedAt) >= s.ttl
}

// List returns the live records, newest first.
func (s *Store) List() []FileRecord {
	now := s.now()
	s.mu.Lock()
	out := make([]FileRecord, 0, len(s.files))
	for _, e := range s.files {
		if !s.expired(e, now) {
			out = append(out, e.rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Lookup returns the record for id, or ErrNotFound if it is absent or
// past its TTL.
func (s *Store) Lookup(id string) (FileRecord, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[id]
	if !ok || s.expired(e, now) {
		return FileRecord{}, ErrNotFound
	}
	return e.rec, nil
}

// Download is an open payload. The record cannot be reaped while it is
// open, up to the grace ceiling. Close must be called exactly once; extra
// calls are harmless.
type Download struct {
	*os.File
	Record FileRecord

	store *Store
	once  sync.Once
}

// Close closes the payload and releases the in-flight reference.
func (d *Download) Close() error {
	err := d.File.Close()
	d.once.Do(func() { d.store.release(d.Record.ID) })
	return err
}

// Open pins the record and opens its payload for reading.
func (s *Store) Open(id string) (*Download, error) {
	now := s.now()
	s.mu.Lock()
	e, ok := s.files[id]
	if !ok || s.expired(e, now) {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	e.refs++
	rec, path := e.rec, e.path
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		s.release(id)
		if errors.Is(err, os.ErrNotExist) {
			s.Forget(id)
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Download{File: f, Record: rec, store: s}, nil
}

// release drops one in-flight reference. An expired record whose last
// reader just finished is removed immediately.
func (s *Store) release(id string) {
	now := s.now()
	s.mu.Lock()
	e, ok := s.files[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	var victim string
	if e.refs == 0 && s.expired(e, now) {
		delete(s.files, id)
		victim = e.path
	}
	count := len(s.files)
	s.mu.Unlock()

	if victim != "" {
		removePayload(victim)
		metrics.RecordReaped("expired", 1)
		metrics.SetFilesStored(count)
		logging.Debug("expired file removed after last download", zap.String("id", id))
	}
}

// ReapResult counts what one sweep did.
type ReapResult struct {
	Expired  int
	Forced   int
	Deferred int
}

// Reap removes expired records with no reader. Records still being read
// are kept until the grace ceiling, after which they are removed anyway;
// open readers keep their file handle.
func (s *Store) Reap() ReapResult {
	now := s.now()
	var res ReapResult
	var victims []string

	s.mu.Lock()
	for id, e := range s.files {
		if !s.expired(e, now) {
			continue
		}
		switch {
		case e.refs == 0:
			res.Expired++
		case now.Sub(e.rec.UploadedAt) >= s.ttl+s.grace:
			res.Forced++
			logging.Warn("forcing removal of file still being downloaded",
				zap.String("id", id), zap.Int("readers", e.refs))
		default:
			res.Deferred++
			continue
		}
		delete(s.files, id)
		victims = append(victims, e.path)
	}
	count := len(s.files)
	s.mu.Unlock()

	for _, p := range victims {
		removePayload(p)
	}
	metrics.RecordReaped("expired", res.Expired)
	metrics.RecordReaped("forced", res.Forced)
	metrics.RecordReaped("deferred", res.Deferred)
	metrics.SetFilesStored(count)
	if len(victims) > 0 {
		util.WriteAuditLog("Reaped %d expired file(s), %d forced", res.Expired+res.Forced, res.Forced)
	}
	if len(victims) > 0 || res.Deferred > 0 {
		logging.Info("reaped expired files",
			zap.Int("expired", res.Expired), zap.Int("forced", res.Forced), zap.Int("deferred", res.Deferred))
	}
	return res
}

func removePayload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("remove payload failed", zap.String("path", path), zap.Error(err))
	}
}

// Run reaps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Reap()
		}
	}
}

// Forget drops the index record for id without touching disk. Used when
// the payload disappeared behind the store's back.
func (s *Store) Forget(id string) bool {
	s.mu.Lock()
	_, ok := s.files[id]
	delete(s.files, id)
	count := len(s.files)
	s.mu.Unlock()
	if ok {
		metrics.SetFilesStored(count)
	}
	return ok
}

// Len returns the number of indexed records, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
