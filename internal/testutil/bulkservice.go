package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/zip"

	"github.com/infobloxopen/cq-source-bulk/internal/bulkfile"
	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/operation"
	"github.com/infobloxopen/cq-source-bulk/internal/transport"
)

// TestAccessToken is the bearer token the fake service accepts.
const TestAccessToken = "test-token"

type fakeJob struct {
	kind    operation.Kind
	polls   int
	payload []byte
}

// BulkService is an in-memory remote bulk service served over HTTP. Every job
// walks through Statuses, one per status poll, repeating the last one.
type BulkService struct {
	Server *httptest.Server

	mu sync.Mutex
	// Statuses is the status script of new jobs. A terminal non-failed status
	// gets the job's result file URL.
	Statuses []operation.Status
	// DownloadPayload is the result file of download and report jobs.
	DownloadPayload []byte
	// ResultURL overrides the result file URL of every job when set.
	ResultURL string

	jobs      map[string]*fakeJob
	nextID    int
	downloads []transport.DownloadRequest
	uploads   map[string][]byte
	polls     int
}

// NewBulkService starts a fake service. Close it with Server.Close.
func NewBulkService() *BulkService {
	s := &BulkService{
		Statuses: []operation.Status{
			{State: operation.Pending},
			{State: operation.InProgress, PercentComplete: 40},
			{State: operation.Completed, PercentComplete: 100},
		},
		jobs:    map[string]*fakeJob{},
		uploads: map[string][]byte{},
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/bulk/v1/downloads", s.submitDownload)
		r.Post("/bulk/v1/uploads", s.submitUpload)
		r.Post("/reporting/v1/reports", s.submitReport)
		r.Get("/{service}/v1/{kind}/{id}/status", s.status)
		r.Post("/upload/{id}", s.receiveUpload)
	})
	r.Get("/files/{id}", s.serveFile)
	s.Server = httptest.NewServer(r)
	return s
}

// URL returns the base URL of the service.
func (s *BulkService) URL() string { return s.Server.URL }

// Close stops the server.
func (s *BulkService) Close() { s.Server.Close() }

// DownloadRequests returns the download requests received so far.
func (s *BulkService) DownloadRequests() []transport.DownloadRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.DownloadRequest(nil), s.downloads...)
}

// Upload returns the file uploaded for a request id.
func (s *BulkService) Upload(requestID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.uploads[requestID]
	return b, ok
}

// Polls returns the number of status polls served.
func (s *BulkService) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *BulkService) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(transport.HeaderAuthorization) != "Bearer "+TestAccessToken {
			writeJSON(w, http.StatusUnauthorized, transport.FaultError{Code: "AuthenticationTokenExpired", Message: "invalid access token"})
			return
		}
		if id := r.Header.Get(transport.HeaderTrackingID); id != "" {
			w.Header().Set(transport.HeaderTrackingID, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *BulkService) newJob(kind operation.Kind, payload []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("%s-%d", kind, s.nextID)
	s.jobs[id] = &fakeJob{kind: kind, payload: payload}
	return id
}

func (s *BulkService) submitDownload(w http.ResponseWriter, r *http.Request) {
	var req transport.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, transport.FaultError{Code: "InvalidRequest", Message: err.Error()})
		return
	}
	s.mu.Lock()
	s.downloads = append(s.downloads, req)
	payload := s.DownloadPayload
	s.mu.Unlock()
	id := s.newJob(operation.Download, payload)
	writeJSON(w, http.StatusOK, transport.SubmitResponse{RequestID: id})
}

func (s *BulkService) submitUpload(w http.ResponseWriter, r *http.Request) {
	id := s.newJob(operation.Upload, nil)
	writeJSON(w, http.StatusOK, transport.SubmitResponse{RequestID: id, UploadURL: s.Server.URL + "/upload/" + id})
}

func (s *BulkService) submitReport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	payload := s.DownloadPayload
	s.mu.Unlock()
	id := s.newJob(operation.Report, payload)
	writeJSON(w, http.StatusOK, transport.SubmitResponse{RequestID: id})
}

// receiveUpload stores the uploaded file and serves it back as the job result.
func (s *BulkService) receiveUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, _, err := r.FormFile("uploadFile")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, transport.FaultError{Code: "InvalidUpload", Message: err.Error()})
		return
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, transport.FaultError{Code: "InvalidUpload", Message: err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, transport.FaultError{Code: "UnknownRequest", Message: id})
		return
	}
	s.uploads[id] = b
	job.payload = b
	w.WriteHeader(http.StatusOK)
}

func (s *BulkService) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, transport.FaultError{Code: "UnknownRequest", Message: id})
		return
	}
	s.polls++
	i := job.polls
	if i >= len(s.Statuses) {
		i = len(s.Statuses) - 1
	}
	job.polls++
	st := s.Statuses[i]
	st.RequestID = id
	if st.State.Terminal() && !st.State.Failed() {
		st.ResultFileURL = s.Server.URL + "/files/" + id
		if s.ResultURL != "" {
			st.ResultFileURL = s.ResultURL
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *BulkService) serveFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	job, ok := s.jobs[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok || job.payload == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(job.payload)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// BulkFile renders entities as a CSV bulk file.
func BulkFile(entities ...entity.Entity) ([]byte, error) {
	var buf bytes.Buffer
	w := bulkfile.NewWriter(&buf)
	if err := w.WriteEntities(entities); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ZipBulkFile renders entities as a CSV bulk file zipped under name.
func ZipBulkFile(name string, entities ...entity.Entity) ([]byte, error) {
	data, err := BulkFile(entities...)
	if err != nil {
		return nil, err
	}
	return Zip(name, data)
}

// Zip returns a single-entry zip archive holding data under name.
func Zip(name string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write zip entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// Unzip returns the content of the only entry of a zip archive.
func Unzip(b []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("zip has %d entries, want 1", len(zr.File))
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
