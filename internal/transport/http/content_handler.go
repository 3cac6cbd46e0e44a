package httptransport

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/content"
	"github.com/ezac101/chainmail/internal/monitoring"
	"github.com/ezac101/chainmail/internal/service"
)

// ContentHandler 处理密文内容的上传与下载
//
// 内容按 SHA-256 寻址，同一份密文重复上传返回相同标识。
type ContentHandler struct {
	contents *service.ContentService
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewContentHandler 创建内容处理器
func NewContentHandler(contents *service.ContentService, metrics *monitoring.Metrics, log *zap.Logger) *ContentHandler {
	return &ContentHandler{
		contents: contents,
		metrics:  metrics,
		log:      log,
	}
}

// Upload 上传密文，返回内容标识
func (h *ContentHandler) Upload(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequest(c, MsgRequestBodyEmpty)
		return
	}

	cid, err := h.contents.Upload(c.Request.Context(), data)
	if err != nil {
		switch {
		case errors.Is(err, content.ErrEmptyContent):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, content.ErrContentTooLarge):
			PayloadTooLarge(c, GetErrorMessage(err))
		default:
			h.log.Error("上传密文失败", zap.Error(err))
			InternalError(c, MsgContentUploadFailed)
		}
		return
	}

	h.metrics.RecordContentUpload(len(data))

	Created(c, gin.H{
		"contentId": cid,
		"size":      len(data),
	})
}

// Download 按标识下载密文
func (h *ContentHandler) Download(c *gin.Context) {
	cid := c.Param("cid")
	if err := content.ValidateContentID(cid); err != nil {
		BadRequest(c, GetErrorMessage(content.ErrInvalidContentID))
		return
	}

	data, err := h.contents.Fetch(c.Request.Context(), cid)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		h.log.Error("读取密文失败", zap.String("cid", cid), zap.Error(err))
		InternalError(c, MsgContentGetFailed)
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", data)
}

// Head 检查密文是否存在
func (h *ContentHandler) Head(c *gin.Context) {
	cid := c.Param("cid")
	if err := content.ValidateContentID(cid); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	ok, err := h.contents.Exists(c.Request.Context(), cid)
	if err != nil || !ok {
		c.Status(http.StatusNotFound)
		return
	}

	c.Status(http.StatusOK)
}
