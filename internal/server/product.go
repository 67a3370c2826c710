package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	productdomain "github.com/smallbiznis/marketplace/internal/product/domain"
)

const (
	formDTO             = "dto"
	formPhoto           = "foto"
	formPhotos          = "fotos"
	formAuthorizedFiles = "archivosAut"
	formKeepPhotoIDs    = "keepFotoIds"
	formKeepAuthIDs     = "autKeepIds"
	maxDTOBytes         = 64 << 10
)

// productPayload is the JSON carried in the "dto" part of product forms.
type productPayload struct {
	Name        *string  `json:"nombre"`
	Description *string  `json:"descripcionProd"`
	Price       *float64 `json:"precioIndividual"`
	Country     *string  `json:"pais"`
	Categories  []string `json:"categorias"`
	Specialties []string `json:"especialidades"`
}

type decisionRequest struct {
	Approve *bool   `json:"aprobar"`
	Comment *string `json:"comentario"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	a, ok := s.actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var payload productPayload
	if err := readDTO(c, &payload); err != nil {
		AbortWithError(c, err)
		return
	}

	uploads, err := openUploads(c)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer uploads.Close()

	req := productdomain.CreateRequest{
		Description: payload.Description,
		Country:     payload.Country,
		Categories:  payload.Categories,
		Specialties: payload.Specialties,
	}
	if payload.Name != nil {
		req.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.Price != nil {
		req.Price = *payload.Price
	}

	resp, err := s.productSvc.Create(c.Request.Context(), a, req, uploads.primary, uploads.authorized)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	a, ok := s.actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var payload productPayload
	if err := readDTO(c, &payload); err != nil {
		AbortWithError(c, err)
		return
	}

	keepPrimary, err := readKeepList(c, formKeepPhotoIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	keepAuthorized, err := readKeepList(c, formKeepAuthIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	uploads, err := openUploads(c)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer uploads.Close()

	resp, err := s.productSvc.Update(c.Request.Context(), a, productdomain.UpdateRequest{
		ID:                strings.TrimSpace(c.Param("id")),
		Name:              payload.Name,
		Description:       payload.Description,
		Price:             payload.Price,
		Country:           payload.Country,
		Categories:        payload.Categories,
		Specialties:       payload.Specialties,
		KeepPrimaryIDs:    keepPrimary,
		KeepAuthorizedIDs: keepAuthorized,
	}, uploads.primary, uploads.authorized)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DecideProduct(c *gin.Context) {
	a, ok := s.actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Approve == nil {
		AbortWithError(c, newValidationError("aprobar", "required", "aprobar is required"))
		return
	}

	resp, err := s.productSvc.Decide(c.Request.Context(), a, productdomain.DecideRequest{
		ID:      strings.TrimSpace(c.Param("id")),
		Approve: *req.Approve,
		Comment: req.Comment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteProduct(c *gin.Context) {
	a, ok := s.actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.productSvc.Delete(c.Request.Context(), a, strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetProductByID(c *gin.Context) {
	resp, err := s.productSvc.GetView(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		AbortWithError(c, newValidationError("page", err.Error(), "invalid pagination"))
		return
	}

	rawStatus := c.Query("status")
	if rawStatus == "" {
		rawStatus = c.Query("estado")
	}
	status, err := productdomain.ParseStatus(strings.ToUpper(strings.TrimSpace(rawStatus)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.productSvc.List(c.Request.Context(), productdomain.ListRequest{Status: status, Page: page})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPendingProducts(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		AbortWithError(c, newValidationError("page", err.Error(), "invalid pagination"))
		return
	}

	resp, err := s.productSvc.ListPending(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMyProducts(c *gin.Context) {
	a, ok := s.actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.productSvc.ListByUploader(c.Request.Context(), a.Username)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProductsByUploader(c *gin.Context) {
	resp, err := s.productSvc.ListByUploader(c.Request.Context(), strings.TrimSpace(c.Param("username")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// readDTO decodes the "dto" part, sent either as a form field or as a JSON
// file part.
func readDTO(c *gin.Context, out *productPayload) error {
	raw := c.PostForm(formDTO)
	if raw == "" {
		header, err := c.FormFile(formDTO)
		if err != nil {
			return newValidationError(formDTO, "required", "dto is required")
		}
		f, err := header.Open()
		if err != nil {
			return invalidRequestError()
		}
		defer f.Close()
		body, err := io.ReadAll(io.LimitReader(f, maxDTOBytes))
		if err != nil {
			return invalidRequestError()
		}
		raw = string(body)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return newValidationError(formDTO, "invalid_dto", "dto must be valid JSON")
	}
	return nil
}

// readKeepList returns nil when the field is absent so every stored reference
// is kept.
func readKeepList(c *gin.Context, field string) ([]string, error) {
	raw, ok := c.GetPostForm(field)
	if !ok {
		return nil, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, newValidationError(field, "invalid_"+field, field+" must be a JSON list of file ids")
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

type formUploads struct {
	primary    []filestoredomain.FileUpload
	authorized []filestoredomain.FileUpload
	closers    []io.Closer
}

func (u *formUploads) Close() {
	for _, c := range u.closers {
		_ = c.Close()
	}
}

func openUploads(c *gin.Context) (*formUploads, error) {
	uploads := &formUploads{}
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return uploads, nil
		}
		return nil, err
	}

	primaryHeaders := make([]*multipart.FileHeader, 0, len(form.File[formPhoto])+len(form.File[formPhotos]))
	primaryHeaders = append(primaryHeaders, form.File[formPhoto]...)
	primaryHeaders = append(primaryHeaders, form.File[formPhotos]...)
	if uploads.primary, err = uploads.open(primaryHeaders); err != nil {
		uploads.Close()
		return nil, err
	}
	if uploads.authorized, err = uploads.open(form.File[formAuthorizedFiles]); err != nil {
		uploads.Close()
		return nil, err
	}
	return uploads, nil
}

func (u *formUploads) open(headers []*multipart.FileHeader) ([]filestoredomain.FileUpload, error) {
	files := make([]filestoredomain.FileUpload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, err
		}
		u.closers = append(u.closers, f)
		files = append(files, filestoredomain.FileUpload{
			Filename:    h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Size:        h.Size,
			Content:     f,
		})
	}
	return files, nil
}
