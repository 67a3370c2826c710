package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	categorydomain "github.com/smallbiznis/marketplace/internal/category/domain"
)

func (s *Server) ListCategories(c *gin.Context) {
	kind, err := categorydomain.ParseKind(strings.ToLower(strings.TrimSpace(c.Param("kind"))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.categorySvc.List(c.Request.Context(), kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
