// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/filestore"
	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/metrics"
	"github.com/ddoffy/mobile-trackpad/internal/session"
	"github.com/ddoffy/mobile-trackpad/internal/util"
)

// multipartOverhead is allowed on top of the payload limit for part
// headers and boundaries.
const multipartOverhead = 1 << 20

type fileEntry struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	UploadedAt  int64  `json:"uploaded_at"`
}

type uploadResp struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// FilesHandler lists the files currently available for download.
// @Summary List shared files
// @Description Returns the stored files, newest first.
// @ID listFiles
// @Tags files
// @Produce json
// @Success 200 {array} fileEntry
// @Router /files [get]
func FilesHandler(store *filestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs := store.List()
		out := make([]fileEntry, 0, len(recs))
		for _, rec := range recs {
			out = append(out, fileEntry{
				ID:          rec.ID,
				Filename:    rec.Filename,
				Size:        rec.Size,
				ContentType: rec.ContentType,
				UploadedAt:  rec.UploadedAt.Unix(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// UploadHandler streams the multipart field "file" into the store and
// announces it to the connected sessions. The uploading session may name
// itself with ?session=<id>.
// @Summary Upload a file
// @Description Upload one file via multipart/form-data.
// @ID uploadFile
// @Tags files
// @Accept multipart/form-data
// @Param session query string false "Uploading session id"
// @Param file formData file true "File to share"
// @Success 200 {object} uploadResp
// @Failure 413 "Too large"
// @Failure 507 "Insufficient storage"
// @Router /upload [post]
func UploadHandler(store *filestore.Store, mgr *session.Manager, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		mr, err := r.MultipartReader()
		if err != nil {
			metrics.RecordUpload("bad_request", 0)
			http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
			return
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				uploadFailed(w, err)
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			rec, err := store.Put(r.Context(), part.FileName(), part)
			part.Close()
			if err != nil {
				uploadFailed(w, err)
				return
			}

			metrics.RecordUpload("ok", rec.Size)
			logging.Info("file stored", zap.String("id", rec.ID), zap.String("filename", rec.Filename), zap.Int64("size", rec.Size))
			util.WriteAuditLog("Upload %s (%s, %d bytes) from %s", rec.ID, rec.Filename, rec.Size, r.RemoteAddr)
			mgr.AnnounceUpload(r.URL.Query().Get("session"), rec)
			writeJSON(w, http.StatusOK, uploadResp{ID: rec.ID, Filename: rec.Filename, Size: rec.Size})
			return
		}

		metrics.RecordUpload("bad_request", 0)
		http.Error(w, `missing form field "file"`, http.StatusBadRequest)
	}
}

func uploadFailed(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	var se *filestore.StorageError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, filestore.ErrTooLarge):
		metrics.RecordUpload("too_large", 0)
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	case errors.As(err, &se):
		metrics.RecordUpload("error", 0)
		logging.Error("upload failed", zap.Error(err))
		http.Error(w, "failed to store file", se.Status)
	default:
		metrics.RecordUpload("bad_request", 0)
		http.Error(w, "failed to read upload", http.StatusBadRequest)
	}
}

// DownloadHandler streams a stored file. Unknown and expired ids are 404.
// @Summary Download a shared file
// @ID downloadFile
// @Tags files
// @Param id path string true "File id"
// @Produce application/octet-stream
// @Success 200
// @Failure 404 "Not found or expired"
// @Router /download/{id} [get]
func DownloadHandler(store *filestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		d, err := store.Open(id)
		if errors.Is(err, filestore.ErrNotFound) {
			metrics.RecordDownload("not_found")
			logging.Debug("download of unknown file", zap.String("id", id))
			http.NotFound(w, r)
			return
		}
		if err != nil {
			metrics.RecordDownload("error")
			logging.Error("open download failed", zap.String("id", id), zap.Error(err))
			http.Error(w, "cannot open file", http.StatusInternalServerError)
			return
		}
		defer d.Close()

		rec := d.Record
		w.Header().Set("Content-Type", rec.ContentType)
		w.Header().Set("Content-Disposition", contentDisposition(rec.Filename))
		w.Header().Set("X-Content-Type-Options", "nosniff")

		cw := &countingWriter{ResponseWriter: w}
		http.ServeContent(cw, r, rec.Filename, rec.UploadedAt, d)
		metrics.RecordDownload("ok")
		metrics.RecordBytesDownloaded(cw.n)
	}
}

func contentDisposition(name string) string {
	name = util.SafeFilename(name)
	return `attachment; filename="` + name + `"; filename*=UTF-8''` + url.PathEscape(name)
}

type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Unwrap() http.ResponseWriter { return c.ResponseWriter }
