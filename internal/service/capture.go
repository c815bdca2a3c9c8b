package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempmail/capture/internal/crypto"
	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/events"
	"tempmail/capture/internal/inbound"
	"tempmail/capture/internal/monitoring"
	"tempmail/capture/internal/security"
	"tempmail/capture/internal/storage"
)

// CaptureStatus 捕获结果状态，两种状态都返回 200。
type CaptureStatus string

const (
	CaptureSuccess CaptureStatus = "success"
	CaptureIgnored CaptureStatus = "ignored"
)

// 忽略原因
const (
	IgnoreUnknownRecipient = "unknown_recipient"
	IgnoreInactiveMailbox  = "inactive_mailbox"
	IgnoreDuplicate        = "duplicate"
)

// 附件结果
const (
	attachmentSaved        = "saved"
	attachmentRejected     = "rejected"
	attachmentUploadFailed = "upload_failed"
	attachmentRecordFailed = "record_failed"
	attachmentSkipped      = "skipped"
)

// FieldSealer 字段加密器
type FieldSealer interface {
	Encrypt(plaintext string) (crypto.Sealed, error)
}

// Deduper 入站投递幂等过滤器
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// AttachmentResult 单个附件的处理结果，Err 非空表示失败。
type AttachmentResult struct {
	FileName   string `json:"fileName"`
	StorageRef string `json:"storageRef,omitempty"`
	SizeBytes  int64  `json:"sizeBytes"`
	Outcome    string `json:"outcome"`
	Err        error  `json:"-"`
}

// Saved 附件是否已保存
func (r AttachmentResult) Saved() bool {
	return r.Err == nil && r.Outcome == attachmentSaved
}

// CaptureReport 一次捕获的完整诊断信息
type CaptureReport struct {
	Status      CaptureStatus
	Reason      string
	MessageID   string
	MailboxID   string
	Attachments []AttachmentResult
	Skipped     []inbound.SkippedAttachment
}

// SavedAttachments 返回已保存附件的文件名
func (r *CaptureReport) SavedAttachments() []string {
	names := make([]string, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		if a.Saved() {
			names = append(names, a.FileName)
		}
	}
	return names
}

// FailedAttachments 返回失败的附件数量（含归一化阶段跳过的）
func (r *CaptureReport) FailedAttachments() int {
	failed := len(r.Skipped)
	for _, a := range r.Attachments {
		if !a.Saved() {
			failed++
		}
	}
	return failed
}

// CaptureService 入站邮件捕获编排器。
//
// 邮件行先于附件行写入；单个附件失败只记录在报告中，不回滚邮件。
type CaptureService struct {
	directory *Directory
	messages  storage.MessageRepository
	blobs     storage.BlobStore
	sealer    FieldSealer
	policy    *security.AttachmentPolicy
	dedup     Deduper
	publisher events.Publisher
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// CaptureOption 捕获服务可选项
type CaptureOption func(*CaptureService)

// WithDeduper 启用幂等过滤
func WithDeduper(d Deduper) CaptureOption {
	return func(s *CaptureService) { s.dedup = d }
}

// WithPublisher 设置事件发布者
func WithPublisher(p events.Publisher) CaptureOption {
	return func(s *CaptureService) { s.publisher = p }
}

// WithAttachmentPolicy 设置附件安全策略
func WithAttachmentPolicy(p *security.AttachmentPolicy) CaptureOption {
	return func(s *CaptureService) { s.policy = p }
}

// WithCaptureMetrics 设置监控指标
func WithCaptureMetrics(m *monitoring.Metrics) CaptureOption {
	return func(s *CaptureService) { s.metrics = m }
}

// WithCaptureClock 替换时钟，测试用
func WithCaptureClock(now func() time.Time) CaptureOption {
	return func(s *CaptureService) { s.now = now }
}

// NewCaptureService 创建捕获服务。
func NewCaptureService(
	directory *Directory,
	messages storage.MessageRepository,
	blobs storage.BlobStore,
	sealer FieldSealer,
	logger *zap.Logger,
	opts ...CaptureOption,
) *CaptureService {
	s := &CaptureService{
		directory: directory,
		messages:  messages,
		blobs:     blobs,
		sealer:    sealer,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.policy == nil {
		s.policy = security.NewAttachmentPolicy(0)
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetrics(nil)
	}
	return s
}

// Capture 处理一次入站投递。
//
// 返回 *inbound.ParseError 表示客户端输入错误；其它 error 表示内部故障，
// 上游应当重投。未知或已停用的收件人返回 CaptureIgnored，过期不在此处判断。
func (s *CaptureService) Capture(ctx context.Context, payload inbound.Payload, provider string) (*CaptureReport, error) {
	start := s.now()

	normalized, err := inbound.Normalize(payload)
	if err != nil {
		s.metrics.RecordCapture("rejected", s.now().Sub(start))
		return nil, err
	}
	msg := normalized.Message
	report := &CaptureReport{Skipped: normalized.Skipped}
	for _, skipped := range normalized.Skipped {
		s.metrics.RecordAttachment(attachmentSkipped, 0)
		s.logger.Warn("attachment skipped during normalization",
			zap.Int("index", skipped.Index),
			zap.String("fileName", skipped.Name),
			zap.String("reason", skipped.Reason),
		)
	}

	mailbox, err := s.directory.FindByAddress(ctx, msg.Recipient)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info("inbound mail for unknown recipient ignored", zap.String("provider", provider))
		return s.ignore(report, IgnoreUnknownRecipient, start), nil
	case err != nil:
		s.metrics.RecordCapture("failed", s.now().Sub(start))
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}
	report.MailboxID = mailbox.ID
	if !mailbox.IsActive {
		s.logger.Info("inbound mail for inactive mailbox ignored", zap.String("mailboxId", mailbox.ID))
		return s.ignore(report, IgnoreInactiveMailbox, start), nil
	}

	key := IdempotencyKey(msg)
	claimed := false
	if s.dedup != nil {
		first, err := s.dedup.Claim(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("dedup claim failed, processing without idempotency", zap.Error(err))
		case !first:
			s.logger.Info("duplicate inbound delivery ignored", zap.String("mailboxId", mailbox.ID))
			return s.ignore(report, IgnoreDuplicate, start), nil
		default:
			claimed = true
		}
	}

	message, err := s.seal(mailbox.ID, msg)
	if err == nil {
		err = s.messages.SaveMessage(ctx, message)
	}
	if err != nil {
		if claimed {
			s.release(ctx, key)
		}
		s.metrics.RecordCapture("failed", s.now().Sub(start))
		return nil, fmt.Errorf("persist message: %w", err)
	}
	report.MessageID = message.ID

	for _, att := range msg.Attachments {
		result := s.storeAttachment(ctx, message.ID, att)
		s.metrics.RecordAttachment(result.Outcome, result.SizeBytes)
		if result.Err != nil {
			s.logger.Warn("attachment not stored",
				zap.String("messageId", message.ID),
				zap.String("fileName", result.FileName),
				zap.String("outcome", result.Outcome),
				zap.Error(result.Err),
			)
		}
		report.Attachments = append(report.Attachments, result)
	}

	report.Status = CaptureSuccess
	s.metrics.RecordCapture("stored", s.now().Sub(start))
	s.logger.Info("inbound mail captured",
		zap.String("messageId", message.ID),
		zap.String("mailboxId", mailbox.ID),
		zap.String("provider", provider),
		zap.Int("attachments", len(report.SavedAttachments())),
		zap.Int("attachmentFailures", report.FailedAttachments()),
	)

	s.publish(ctx, report, message.ReceivedAt, provider)
	return report, nil
}

// seal 独立加密三个字段，任一失败整体失败，不会写入明文
func (s *CaptureService) seal(mailboxID string, msg *domain.InboundMessage) (*domain.CapturedMessage, error) {
	subject, err := s.sealer.Encrypt(msg.Subject)
	if err != nil {
		return nil, fmt.Errorf("encrypt subject: %w", err)
	}
	body, err := s.sealer.Encrypt(msg.BodyText)
	if err != nil {
		return nil, fmt.Errorf("encrypt body: %w", err)
	}
	html, err := s.sealer.Encrypt(msg.BodyHTML)
	if err != nil {
		return nil, fmt.Errorf("encrypt html: %w", err)
	}

	return &domain.CapturedMessage{
		ID:            uuid.NewString(),
		MailboxID:     mailboxID,
		SenderAddress: msg.Sender,
		SubjectCipher: subject.Ciphertext,
		SubjectNonce:  subject.Nonce,
		BodyCipher:    body.Ciphertext,
		BodyNonce:     body.Nonce,
		HTMLCipher:    html.Ciphertext,
		HTMLNonce:     html.Nonce,
		IsEncrypted:   true,
		ReceivedAt:    s.now().UTC(),
	}, nil
}

func (s *CaptureService) storeAttachment(ctx context.Context, messageID string, att domain.InboundAttachment) AttachmentResult {
	result := AttachmentResult{FileName: att.FileName, SizeBytes: int64(len(att.Content))}

	if err := s.policy.Check(att.FileName, att.Content); err != nil {
		result.Outcome, result.Err = attachmentRejected, err
		return result
	}

	path := fmt.Sprintf("%s/%d_%s", messageID, s.now().UnixNano(), security.SanitizeFileName(att.FileName))
	ref, err := s.blobs.Put(ctx, path, att.Content, att.ContentType)
	if err != nil {
		result.Outcome, result.Err = attachmentUploadFailed, fmt.Errorf("upload: %w", err)
		return result
	}
	result.StorageRef = ref

	record := &domain.Attachment{
		ID:          uuid.NewString(),
		MessageID:   messageID,
		FileName:    att.FileName,
		ContentType: att.ContentType,
		SizeBytes:   result.SizeBytes,
		StorageRef:  ref,
	}
	if err := s.messages.SaveAttachment(ctx, record); err != nil {
		result.Outcome, result.Err = attachmentRecordFailed, fmt.Errorf("save attachment record: %w", err)
		return result
	}

	result.Outcome = attachmentSaved
	return result
}

func (s *CaptureService) ignore(report *CaptureReport, reason string, start time.Time) *CaptureReport {
	report.Status = CaptureIgnored
	report.Reason = reason
	s.metrics.RecordCapture("ignored_"+reason, s.now().Sub(start))
	return report
}

func (s *CaptureService) release(ctx context.Context, key string) {
	if err := s.dedup.Release(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("dedup release failed", zap.Error(err))
	}
}

func (s *CaptureService) publish(ctx context.Context, report *CaptureReport, receivedAt time.Time, provider string) {
	err := s.publisher.PublishCaptured(ctx, events.MessageCaptured{
		MessageID:         report.MessageID,
		MailboxID:         report.MailboxID,
		Provider:          provider,
		AttachmentsSaved:  len(report.SavedAttachments()),
		AttachmentsFailed: report.FailedAttachments(),
		ReceivedAt:        receivedAt,
	})
	s.metrics.RecordEventPublished(err == nil)
	if err != nil {
		s.logger.Warn("failed to publish capture event", zap.String("messageId", report.MessageID), zap.Error(err))
	}
}

// IdempotencyKey 计算入站投递的幂等键。
//
// 有 Message-Id 时按 (收件人, Message-Id) 计算，同一封邮件投给不同邮箱互不影响；
// 否则对规范化后的字段与附件名求摘要。
func IdempotencyKey(msg *domain.InboundMessage) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(msg.Recipient)
	if msg.MessageID != "" {
		write(msg.MessageID)
		return "mid:" + hex.EncodeToString(h.Sum(nil))
	}

	write(msg.Sender)
	write(msg.Subject)
	write(msg.BodyText)
	write(msg.BodyHTML)
	for _, att := range msg.Attachments {
		write(att.FileName)
	}
	return "sum:" + hex.EncodeToString(h.Sum(nil))
}
