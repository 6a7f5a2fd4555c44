package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/service"
)

func (s *Server) saveItem(c *gin.Context) {
	var in service.SaveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	item, err := s.deps.Ingest.Save(c.Request.Context(), ownerOf(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// uploadImage accepts either JSON with base64 image_data or a multipart form
// with an "image" file and optional "notes".
func (s *Server) uploadImage(c *gin.Context) {
	ctx := c.Request.Context()
	owner := ownerOf(c)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			badRequest(c, fmt.Errorf("missing image file: %w", err))
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, fmt.Errorf("open image file: %w", err))
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			badRequest(c, fmt.Errorf("read image file: %w", err))
			return
		}
		item, err := s.deps.Ingest.SaveImage(ctx, owner, data, fh.Header.Get("Content-Type"), c.PostForm("notes"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
		return
	}

	var in service.ImageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	item, err := s.deps.Ingest.UploadImage(ctx, owner, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) listItems(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	s.respondPage(c, opts)
}

func (s *Server) categoryItems(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	opts.Category = c.Param("name")
	s.respondPage(c, opts)
}

func (s *Server) respondPage(c *gin.Context, opts db.ListOptions) {
	ctx := c.Request.Context()
	owner := ownerOf(c)

	items, err := s.deps.Retrieval.List(ctx, owner, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := s.deps.Retrieval.Count(ctx, owner, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ItemPage{
		Items:  items,
		Total:  total,
		Limit:  service.ClampLimit(opts.Limit),
		Offset: opts.Offset,
	})
}

// listOptions parses ?limit&offset&category&platform&type&starred.
func listOptions(c *gin.Context) (db.ListOptions, error) {
	var opts db.ListOptions
	var err error
	if v := c.Query("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
	}
	if v := c.Query("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil || opts.Offset < 0 {
			return opts, fmt.Errorf("invalid offset %q", v)
		}
	}
	if v := c.Query("starred"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid starred %q", v)
		}
		opts.Starred = &b
	}
	opts.Category = c.Query("category")
	opts.Platform = models.Platform(c.Query("platform"))
	opts.ContentType = models.ContentType(c.Query("type"))
	return opts, nil
}

func (s *Server) getItem(c *gin.Context) {
	item, err := s.deps.Retrieval.Get(c.Request.Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) deleteItem(c *gin.Context) {
	if err := s.deps.Retrieval.Delete(c.Request.Context(), ownerOf(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) starItem(c *gin.Context) {
	item, err := s.deps.Retrieval.ToggleStar(c.Request.Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) search(c *gin.Context) {
	var opts service.SearchOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	res, err := s.deps.Retrieval.Search(c.Request.Context(), ownerOf(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) categories(c *gin.Context) {
	cats, err := s.deps.Retrieval.ListCategories(c.Request.Context(), ownerOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

// media serves stored image blobs. Keys are unguessable, so no auth.
func (s *Server) media(c *gin.Context) {
	if s.deps.Blobs == nil {
		c.Status(http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, err := s.deps.Blobs.Open(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
	})
}

func (s *Server) stats(c *gin.Context) {
	total, err := s.deps.Retrieval.Count(c.Request.Context(), ownerOf(c), db.ListOptions{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Stats{Items: total, Metrics: s.deps.Metrics.Snapshot()})
}
