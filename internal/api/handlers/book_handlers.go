package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ebooklister/ebooklister/internal/metadata"
	"github.com/gin-gonic/gin"
)

// GetBookPDF resolves book_url and downloads the PDF. It answers {title, pdf} where pdf is the
// file name under the download directory.
func (h *Handler) GetBookPDF(c *gin.Context) {
	bookURL := strings.TrimSpace(c.Query("book_url"))
	if bookURL == "" {
		badRequest(c, "book_url is required")
		return
	}
	ctx := requestContext(c)
	target, err := h.Resolver.Resolve(ctx, bookURL)
	if err != nil {
		writeError(c, err)
		return
	}
	path, err := h.Files.Fetch(ctx, target.DownloadURL, target.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"title": target.Title, "pdf": filepath.Base(path)})
}

// SearchBook looks up metadata for title.
func (h *Handler) SearchBook(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		badRequest(c, "title is required")
		return
	}
	book, err := h.Books.SearchByTitle(requestContext(c), title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// GenerateDescription renders listing copy from book fields passed as query parameters.
// List fields accept repeated parameters or a comma separated value.
func (h *Handler) GenerateDescription(c *gin.Context) {
	var book metadata.Book
	if err := c.ShouldBindQuery(&book); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(book.Title) == "" {
		badRequest(c, "title is required")
		return
	}
	book.Authors = splitList(book.Authors)
	book.Publishers = splitList(book.Publishers)
	book.Languages = splitList(book.Languages)
	book.Subjects = splitList(book.Subjects)
	c.JSON(http.StatusOK, gin.H{"description": metadata.GenerateDescription(book)})
}

// DeletePDF removes a downloaded file.
func (h *Handler) DeletePDF(c *gin.Context) {
	name := c.Query("file_name")
	if err := h.Files.Remove(name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "PDF deleted", "file_name": name})
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
