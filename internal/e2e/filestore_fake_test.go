package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

type fakeFile struct {
	ID           int64  `json:"id"`
	DriveFileID  string `json:"driveFileId"`
	OriginalName string `json:"originalName"`
	FileType     string `json:"fileType"`
	Size         int64  `json:"size"`
}

type fakeStaged struct {
	StagingID    string `json:"stagingId"`
	OwnerID      string `json:"ownerId"`
	OriginalName string `json:"originalName"`
	FileType     string `json:"fileType"`
	size         int64
}

// fileService mimics the remote file store endpoints the gateway calls.
type fileService struct {
	mu      sync.Mutex
	seq     int64
	files   map[string][]fakeFile
	staged  map[string][]fakeStaged
	failing bool
}

func newFileService() *fileService {
	return &fileService{
		files:  make(map[string][]fakeFile),
		staged: make(map[string][]fakeStaged),
	}
}

func (f *fileService) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fileService) filesOf(owner string) []fakeFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeFile(nil), f.files[owner]...)
}

func (f *fileService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/public/{owner}", f.upload)
	mux.HandleFunc("POST /api/files/staging/{owner}", f.stage)
	mux.HandleFunc("POST /api/files/staging/{owner}/promote", f.promote)
	mux.HandleFunc("DELETE /api/files/staging/{owner}", f.discard)
	mux.HandleFunc("DELETE /api/files/folder/{owner}", f.deleteFolder)
	mux.HandleFunc("DELETE /api/files/{id}", f.deleteFile)
	mux.HandleFunc("GET /api/files/entity/{owner}", f.list)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		failing := f.failing
		f.mu.Unlock()
		if failing {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (f *fileService) upload(w http.ResponseWriter, r *http.Request) {
	_, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.seq++
	file := fakeFile{
		ID:           f.seq,
		DriveFileID:  fmt.Sprintf("d%d", f.seq),
		OriginalName: header.Filename,
		FileType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
	}
	owner := r.PathValue("owner")
	f.files[owner] = append(f.files[owner], file)
	f.mu.Unlock()

	writeJSON(w, file)
}

func (f *fileService) stage(w http.ResponseWriter, r *http.Request) {
	_, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.seq++
	owner := r.PathValue("owner")
	entry := fakeStaged{
		StagingID:    fmt.Sprintf("s%d", f.seq),
		OwnerID:      owner,
		OriginalName: header.Filename,
		FileType:     header.Header.Get("Content-Type"),
		size:         header.Size,
	}
	f.staged[owner] = append(f.staged[owner], entry)
	f.mu.Unlock()

	writeJSON(w, entry)
}

func (f *fileService) promote(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")

	f.mu.Lock()
	for _, s := range f.staged[owner] {
		f.seq++
		f.files[owner] = append(f.files[owner], fakeFile{
			ID:           f.seq,
			DriveFileID:  fmt.Sprintf("d%d", f.seq),
			OriginalName: s.OriginalName,
			FileType:     s.FileType,
			Size:         s.size,
		})
	}
	delete(f.staged, owner)
	committed := append([]fakeFile{}, f.files[owner]...)
	f.mu.Unlock()

	writeJSON(w, committed)
}

func (f *fileService) discard(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	delete(f.staged, r.PathValue("owner"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fileService) deleteFolder(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	delete(f.files, r.PathValue("owner"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fileService) deleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	defer f.mu.Unlock()
	for owner, files := range f.files {
		for i, file := range files {
			if file.DriveFileID == id {
				f.files[owner] = append(files[:i:i], files[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (f *fileService) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, f.filesOf(r.PathValue("owner")))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
