package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/dmitrijs2005/filevault/internal/server/sharing"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is the slack allowed on top of the file size for
// multipart headers and boundaries.
const multipartOverhead = 1 << 20

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusUnprocessableEntity, codeTooLarge, services.SizeLimitReason(s.maxUploadSize))
			return
		}
		s.writeServiceError(w, r, common.Invalid("invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeServiceError(w, r, common.Reject(services.ReasonFileRequired))
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	res, err := s.vault.Upload(r.Context(), services.UploadRequest{
		OwnerID:      UserIDFromContext(r.Context()),
		Name:         name,
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
		Content:      file,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replaced {
		status = http.StatusOK
	}
	writeJSON(w, status, newFileView(res.File))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	d, err := s.vault.Download(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	modified := d.File.CreatedAt
	if d.File.UpdatedAt != nil {
		modified = *d.File.UpdatedAt
	}

	w.Header().Set("Content-Type", d.File.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.File.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, d.File.Name, modified, d.Object.Reader())
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	err := s.vault.Delete(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type visibilityRequest struct {
	Public *bool `json:"public"`
}

func (s *Server) setVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req.Public == nil {
		s.writeServiceError(w, r, common.Invalid("public is required"))
		return
	}

	f, err := s.vault.SetVisibility(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "fileID"), *req.Public)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileView(f))
}

type shareRequest struct {
	Email           string `json:"email"`
	ExpirationHours int    `json:"expiration_hours"`
	MaxDownloads    *int   `json:"max_downloads"`
}

func (s *Server) share(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	g, err := s.vault.Share(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "fileID"), req.Email,
		sharing.GrantRequest{ExpirationHours: req.ExpirationHours, MaxDownloads: req.MaxDownloads})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGrantView(g))
}

func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := s.vault.ListGrants(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]grantView, 0, len(grants))
	for _, g := range grants {
		out = append(out, newGrantView(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Revoke(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "grantID")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMine(w http.ResponseWriter, r *http.Request) {
	files, err := s.vault.ListMine(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(files)))
	writeJSON(w, http.StatusOK, newFileViews(files))
}

func (s *Server) listPublic(w http.ResponseWriter, r *http.Request) {
	files, err := s.vault.ListPublic(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(files)))
	writeJSON(w, http.StatusOK, newFileViews(files))
}

func (s *Server) listShared(w http.ResponseWriter, r *http.Request) {
	shared, err := s.vault.ListSharedWithMe(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]sharedView, 0, len(shared))
	for _, sf := range shared {
		out = append(out, sharedView{File: newFileView(&sf.File), Owner: sf.Owner, Grant: newGrantView(&sf.Grant)})
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(out)))
	writeJSON(w, http.StatusOK, out)
}
