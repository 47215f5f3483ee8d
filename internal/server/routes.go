package server

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/instructor/internal/protocol"
	"github.com/danmuck/instructor/internal/protocol/frame"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/danmuck/instructor/internal/render"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var contentTypes = map[render.Format]string{
	render.FormatJSON:    "application/json",
	render.FormatYAML:    "application/yaml",
	render.FormatTOML:    "application/toml",
	render.FormatMsgPack: "application/msgpack",
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"schemas": s.Registry.Len(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/schemas", func(c *gin.Context) {
		entries := s.Registry.List()
		list := make([]SchemaInfo, 0, len(entries))
		for _, e := range entries {
			list = append(list, describe(e, false))
		}
		c.JSON(http.StatusOK, gin.H{"schemas": list})
	})

	s.router.GET("/schemas/:id", func(c *gin.Context) {
		e, err := s.entry(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, describe(e, true))
	})

	s.router.POST("/schemas/:id/decode", s.handleDecode)
	s.router.POST("/schemas/:id/encode", s.handleEncode)
}

func (s *Server) handleDecode(c *gin.Context) {
	format, err := render.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadInput, err))
		return
	}

	var data []byte
	if raw, ok := c.GetQuery("hex"); ok {
		data, err = hex.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			writeError(c, fmt.Errorf("%w: hex: %v", ErrBadInput, err))
			return
		}
	} else {
		data, err = s.readBody(c)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	res, err := s.Decode(c.Param("id"), data)
	if err != nil {
		writeError(c, err)
		return
	}
	if format == render.FormatJSON {
		c.JSON(http.StatusOK, res)
		return
	}

	c.Header("X-Consumed-Bytes", fmt.Sprint(res.Consumed))
	var buf bytes.Buffer
	if err := render.Encode(&buf, res.Values, format); err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentTypes[format], buf.Bytes())
}

func (s *Server) handleEncode(c *gin.Context) {
	body, err := s.readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	values, err := render.ParseValues(body, inputFormat(c.ContentType()))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrBadInput, err))
		return
	}

	out, err := s.Encode(c.Param("id"), values)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "hex" {
		c.String(http.StatusOK, hex.EncodeToString(out))
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", out)
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	limit := int64(math.MaxInt64 - 1)
	if s.Limits.MaxMessageBytes < uint64(limit) {
		limit = int64(s.Limits.MaxMessageBytes)
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBadInput, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", frame.ErrMessageTooLarge, limit)
	}
	return data, nil
}

func inputFormat(contentType string) render.Format {
	for f, ct := range contentTypes {
		if ct == contentType {
			return f
		}
	}
	switch contentType {
	case "application/x-yaml", "text/yaml":
		return render.FormatYAML
	case "application/x-msgpack":
		return render.FormatMsgPack
	}
	return render.FormatJSON
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSchemaNotFound):
		return http.StatusNotFound
	case errors.Is(err, frame.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadInput):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrInvalidDataSize),
		errors.Is(err, protocol.ErrUnsetField),
		errors.Is(err, protocol.ErrEncodeOverflow),
		errors.Is(err, protocol.ErrEncodeRange),
		errors.Is(err, protocol.ErrUnknownField),
		errors.Is(err, protocol.ErrFieldTypeMismatch),
		errors.Is(err, protocol.ErrLengthTooLarge):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// SchemaInfo describes a registered schema.
type SchemaInfo struct {
	ID      string      `json:"id"`
	Doc     string      `json:"doc,omitempty"`
	Path    string      `json:"path,omitempty"`
	Endian  string      `json:"endian"`
	MinSize int         `json:"min_size"`
	Layout  string      `json:"layout"`
	Fields  []FieldInfo `json:"fields,omitempty"`
}

type FieldInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    string `json:"size,omitempty"`
	Endian  string `json:"endian,omitempty"`
	Default any    `json:"default,omitempty"`
}

func describe(e *schema.Entry, withFields bool) SchemaInfo {
	info := SchemaInfo{
		ID:      e.ID,
		Doc:     e.Def.Doc,
		Path:    e.Path,
		Endian:  e.Schema.Order().String(),
		MinSize: e.Schema.MinSize(),
		Layout:  e.Schema.String(),
	}
	if !withFields {
		return info
	}
	fields := e.Schema.Fields()
	for _, f := range fields {
		fi := FieldInfo{Name: f.Name, Type: f.Spec.Kind().String()}
		if f.Spec.Kind() == protocol.KindBytes {
			if idx := f.LengthField(); idx >= 0 {
				fi.Size = fields[idx].Name
			} else {
				fi.Size = fmt.Sprint(f.Spec.Length().FixedLen())
			}
		} else {
			fi.Endian = f.ByteOrder().String()
		}
		if d, ok := f.Spec.Default(); ok {
			if b, isBytes := d.([]byte); isBytes {
				d = render.Text(b)
			}
			fi.Default = d
		}
		info.Fields = append(info.Fields, fi)
	}
	return info
}
