package apiserver

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"social-go/internal/config"
	"social-go/internal/storage"
)

const defaultMaxMemory = 32 << 20 // 32 MB default max memory for multipart forms

// UploadHandler 封装了头像上传相关的 HTTP 处理器方法。
type UploadHandler struct {
	fileStorage storage.FileStorage
	cfg         config.StorageConfig
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(fileStorage storage.FileStorage, cfg config.StorageConfig) *UploadHandler {
	return &UploadHandler{
		fileStorage: fileStorage,
		cfg:         cfg,
	}
}

// UploadFileHandler 处理头像文件上传请求，返回可写入用户资料的 URL。
func (h *UploadHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	maxUploadSize := h.cfg.MaxFileSizeMB << 20 // MB → bytes
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxMemory
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(w, fmt.Sprintf("上传文件过大，最大允许 %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, fmt.Sprintf("解析表单失败: %v", err), http.StatusBadRequest)
		}
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, "请求中缺少 'file' 字段", http.StatusBadRequest)
		} else {
			writeJSONError(w, fmt.Sprintf("获取文件失败: %v", err), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	mimeType := handler.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		writeJSONError(w, "仅支持图片文件", http.StatusBadRequest)
		return
	}

	if handler.Size > maxUploadSize {
		writeJSONError(w, fmt.Sprintf("上传文件过大，最大允许 %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		return
	}

	fileInfo, err := h.fileStorage.UploadFile(r.Context(), file, handler.Size, handler.Filename, mimeType)
	if err != nil {
		log.Printf("存储文件失败: %v", err)
		writeJSONError(w, "存储文件失败", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, fileInfo)
}
