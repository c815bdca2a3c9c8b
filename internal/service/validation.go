package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/monitoring"
	"tempmail/capture/internal/retry"
	"tempmail/capture/internal/storage"
)

// MaxBatchInput 一次批量校验最多查询的去重后 ID 数量，超出部分被截断
const MaxBatchInput = 100

// ValidationResult 单个邮箱的校验结果。
//
// 业务失败（不存在、令牌错误、过期、停用）都以结果值返回，不作为 error。
type ValidationResult struct {
	Valid      bool                `json:"valid"`
	Mailbox    *domain.MailboxView `json:"mailbox,omitempty"`
	ReasonCode domain.ReasonCode   `json:"reasonCode,omitempty"`
	Retryable  bool                `json:"retryable,omitempty"`
}

// BatchValidationResult 批量校验结果，Mailbox 为最新创建的可用邮箱。
type BatchValidationResult struct {
	ValidationResult
	ValidEmailIDs []string `json:"validEmailIds"`
}

// ValidationService 邮箱校验服务
type ValidationService struct {
	directory *Directory
	policy    retry.Policy
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// ValidationOption 校验服务可选项
type ValidationOption func(*ValidationService)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) ValidationOption {
	return func(s *ValidationService) { s.now = now }
}

// WithRetryPolicy 替换存储调用的重试策略，Retryable 与 OnRetry 由服务接管
func WithRetryPolicy(p retry.Policy) ValidationOption {
	return func(s *ValidationService) { s.policy = p }
}

// WithValidationMetrics 设置监控指标
func WithValidationMetrics(m *monitoring.Metrics) ValidationOption {
	return func(s *ValidationService) { s.metrics = m }
}

// NewValidationService 创建校验服务。
func NewValidationService(directory *Directory, logger *zap.Logger, opts ...ValidationOption) *ValidationService {
	s := &ValidationService{
		directory: directory,
		policy:    retry.DefaultPolicy(storage.IsTransient),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetrics(nil)
	}
	s.policy.Retryable = storage.IsTransient
	return s
}

// ValidateSingle 校验 (mailboxID, token)。
//
// 判定顺序固定：存在性、令牌、过期、激活。令牌使用常量时间比较。
// 返回的 error 只表示非瞬时的基础设施故障。
func (s *ValidationService) ValidateSingle(ctx context.Context, mailboxID, token string) (ValidationResult, error) {
	mailboxID = strings.TrimSpace(mailboxID)
	if mailboxID == "" || token == "" {
		return s.finish("single", invalid(domain.ReasonInvalidRequest)), nil
	}

	var mailbox *domain.Mailbox
	err := s.withRetry(ctx, "find_mailbox_by_id", func(ctx context.Context) error {
		var err error
		mailbox, err = s.directory.FindByID(ctx, mailboxID)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return s.finish("single", invalid(domain.ReasonMailboxNotFound)), nil
	case errors.Is(err, retry.ErrExhausted):
		s.logger.Warn("mailbox lookup exhausted retries", zap.String("mailboxId", mailboxID), zap.Error(err))
		return s.finish("single", unavailable()), nil
	case errors.Is(err, context.Canceled):
		s.metrics.RecordValidation("single", "canceled")
		return ValidationResult{}, err
	default:
		s.metrics.RecordValidation("single", "error")
		return ValidationResult{}, fmt.Errorf("find mailbox %s: %w", mailboxID, err)
	}

	if subtle.ConstantTimeCompare([]byte(mailbox.SecretToken), []byte(token)) != 1 {
		return s.finish("single", invalid(domain.ReasonInvalidToken)), nil
	}
	if mailbox.Expired(s.now()) {
		return s.finish("single", invalid(domain.ReasonMailboxExpired)), nil
	}
	if !mailbox.IsActive {
		return s.finish("single", invalid(domain.ReasonMailboxInactive)), nil
	}

	return s.finish("single", ValidationResult{Valid: true, Mailbox: mailbox.View()}), nil
}

// ValidateBatch 在一组 ID 中选出最新创建的可用邮箱，同时返回全部通过的 ID。
func (s *ValidationService) ValidateBatch(ctx context.Context, mailboxIDs []string) (BatchValidationResult, error) {
	ids := uniqueIDs(mailboxIDs)
	if len(ids) == 0 {
		return s.finishBatch(BatchValidationResult{ValidationResult: invalid(domain.ReasonInvalidRequest)}), nil
	}
	if len(ids) > MaxBatchInput {
		ids = ids[:MaxBatchInput]
	}

	now := s.now()
	var mailboxes []domain.Mailbox
	err := s.withRetry(ctx, "find_active_mailboxes", func(ctx context.Context) error {
		var err error
		mailboxes, err = s.directory.FindManyByID(ctx, ids, now, storage.MaxBatchSize)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, retry.ErrExhausted):
		s.logger.Warn("batch lookup exhausted retries", zap.Int("ids", len(ids)), zap.Error(err))
		return s.finishBatch(BatchValidationResult{ValidationResult: unavailable()}), nil
	case errors.Is(err, context.Canceled):
		s.metrics.RecordValidation("batch", "canceled")
		return BatchValidationResult{}, err
	default:
		s.metrics.RecordValidation("batch", "error")
		return BatchValidationResult{}, fmt.Errorf("find active mailboxes: %w", err)
	}

	var (
		selected *domain.Mailbox
		validIDs = make([]string, 0, len(mailboxes))
	)
	for i := range mailboxes {
		m := &mailboxes[i]
		if !m.Usable(now) {
			continue
		}
		if selected == nil || m.CreatedAt.After(selected.CreatedAt) {
			selected = m
		}
		validIDs = append(validIDs, m.ID)
	}

	if selected == nil {
		return s.finishBatch(BatchValidationResult{ValidationResult: invalid(domain.ReasonNoUsableMailbox)}), nil
	}
	return s.finishBatch(BatchValidationResult{
		ValidationResult: ValidationResult{Valid: true, Mailbox: selected.View()},
		ValidEmailIDs:    validIDs,
	}), nil
}

func (s *ValidationService) withRetry(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	policy := s.policy
	policy.OnRetry = func(attempt int, err error) {
		s.metrics.RecordStorageRetry(operation)
		s.logger.Debug("retrying storage call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return policy.Do(ctx, op)
}

func (s *ValidationService) finish(mode string, result ValidationResult) ValidationResult {
	s.metrics.RecordValidation(mode, resultLabel(result))
	return result
}

func (s *ValidationService) finishBatch(result BatchValidationResult) BatchValidationResult {
	if result.ValidEmailIDs == nil {
		result.ValidEmailIDs = []string{}
	}
	s.metrics.RecordValidation("batch", resultLabel(result.ValidationResult))
	return result
}

func invalid(reason domain.ReasonCode) ValidationResult {
	return ValidationResult{Valid: false, ReasonCode: reason}
}

func unavailable() ValidationResult {
	return ValidationResult{Valid: false, ReasonCode: domain.ReasonServiceUnavailable, Retryable: true}
}

func resultLabel(r ValidationResult) string {
	if r.Valid {
		return "valid"
	}
	return string(r.ReasonCode)
}

// uniqueIDs 去掉空值与重复值，保持首次出现的顺序
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
