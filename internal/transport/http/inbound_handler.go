package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/capture/internal/inbound"
	"tempmail/capture/internal/service"
)

// InboundHandler 邮件中继推送入口
type InboundHandler struct {
	capture   *service.CaptureService
	maxMemory int64
	logger    *zap.Logger
}

// NewInboundHandler 创建入站处理器
func NewInboundHandler(capture *service.CaptureService, maxMemory int64, logger *zap.Logger) *InboundHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundHandler{capture: capture, maxMemory: maxMemory, logger: logger}
}

// captureResponse 捕获结果，所有业务结果都以 200 返回
type captureResponse struct {
	Status            service.CaptureStatus `json:"status"`
	Reason            string                `json:"reason,omitempty"`
	MessageID         string                `json:"messageId,omitempty"`
	Attachments       int                   `json:"attachments"`
	AttachmentNames   []string              `json:"attachmentNames"`
	FailedAttachments int                   `json:"failedAttachments"`
}

// Receive 接收一封入站邮件
//
// 200 表示已确认（包括被忽略的投递），400 表示输入无法解析，500 表示需要中继重投。
func (h *InboundHandler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := inbound.ParseRequest(c.Request, h.maxMemory)
	if err != nil {
		h.rejectInput(c, err)
		return
	}

	report, err := h.capture.Capture(c.Request.Context(), payload, provider)
	if err != nil {
		var parseErr *inbound.ParseError
		if errors.As(err, &parseErr) {
			h.rejectInput(c, err)
			return
		}
		if ClientGone(c, err) {
			h.logger.Debug("inbound capture canceled by client", zap.String("provider", provider), zap.Error(err))
			return
		}
		h.logger.Error("inbound capture failed", zap.String("provider", provider), zap.Error(err))
		_ = c.Error(err)
		InternalError(c, MsgCaptureFailed)
		return
	}

	names := report.SavedAttachments()
	c.JSON(http.StatusOK, captureResponse{
		Status:            report.Status,
		Reason:            report.Reason,
		MessageID:         report.MessageID,
		Attachments:       len(names),
		AttachmentNames:   names,
		FailedAttachments: report.FailedAttachments(),
	})
}

func (h *InboundHandler) rejectInput(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RequestTooLarge(c, MsgRequestTooLarge)
		return
	}
	h.logger.Info("inbound payload rejected", zap.Error(err))
	BadRequest(c, GetErrorMessage(err))
}
