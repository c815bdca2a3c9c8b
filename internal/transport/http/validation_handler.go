package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/service"
)

// MailboxTokenHeader 令牌也可以通过请求头传入
const MailboxTokenHeader = "X-Mailbox-Token"

// ValidationHandler 邮箱校验入口
type ValidationHandler struct {
	validation *service.ValidationService
	logger     *zap.Logger
}

// NewValidationHandler 创建校验处理器
func NewValidationHandler(validation *service.ValidationService, logger *zap.Logger) *ValidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationHandler{validation: validation, logger: logger}
}

// validateRequest 单个校验传 mailboxId + token，批量校验传 mailboxIds
type validateRequest struct {
	MailboxID  string   `json:"mailboxId"`
	Token      string   `json:"token"`
	MailboxIDs []string `json:"mailboxIds"`
}

// Validate 校验邮箱
//
// 业务结果一律 200；参数错误 400；存储暂时不可用 503 且 retryable=true。
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, service.ValidationResult{ReasonCode: domain.ReasonInvalidRequest})
		return
	}

	if req.MailboxIDs != nil {
		result, err := h.validation.ValidateBatch(c.Request.Context(), req.MailboxIDs)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(statusFor(result.ValidationResult), result)
		return
	}

	token := req.Token
	if token == "" {
		token = c.GetHeader(MailboxTokenHeader)
	}
	result, err := h.validation.ValidateSingle(c.Request.Context(), req.MailboxID, token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(statusFor(result), result)
}

func (h *ValidationHandler) fail(c *gin.Context, err error) {
	if ClientGone(c, err) {
		h.logger.Debug("mailbox validation canceled by client", zap.Error(err))
		return
	}
	h.logger.Error("mailbox validation failed", zap.Error(err))
	_ = c.Error(err)
	InternalError(c, MsgValidationFailed)
}

func statusFor(result service.ValidationResult) int {
	switch {
	case result.Retryable:
		return http.StatusServiceUnavailable
	case result.ReasonCode == domain.ReasonInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}
