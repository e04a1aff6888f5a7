package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/beetlebase/internal/metrics"
	"github.com/hitoshi/beetlebase/internal/model"
)

const (
	// MessageUnavailable は文章生成APIが設定されていない場合の案内文。
	MessageUnavailable = "AI機能は現在利用できません。APIキーが設定されていません。"
	// MessageFailed は文章生成に失敗した場合の案内文。
	MessageFailed = "AIレポートの生成中にエラーが発生しました。しばらくしてからもう一度お試しください。"

	// DefaultCacheTTL はレポートのキャッシュ保持期間の既定値。
	DefaultCacheTTL = 30 * time.Minute
)

// Generator は個体の紹介レポートを生成する。
type Generator interface {
	Generate(ctx context.Context, ind *model.Individual) (string, error)
}

// Service は文章生成APIを呼び出してレポートを作成するGenerator。
// 同じ内容の個体に対する結果はキャッシュし、APIを再度呼び出さない。
type Service struct {
	completer Completer
	cache     *cache.Cache
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceを生成する。completerがnilの場合、Generateは常に利用不可エラーを返す。
func NewService(completer Completer, ttl time.Duration, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completer: completer,
		cache:     cache.New(ttl, 2*ttl),
		metrics:   mc,
		logger:    logger,
	}
}

// Generate は個体のレポートを返す。生成結果はHTMLタグを除いたプレーンテキスト。
// 失敗時はEXTERNAL_SERVICE_FAILUREを返し、キャッシュしないため再実行で回復できる。
func (s *Service) Generate(ctx context.Context, ind *model.Individual) (string, error) {
	if s.completer == nil {
		return "", unavailableError()
	}

	key := cacheKey(ind)
	if v, ok := s.cache.Get(key); ok {
		return v.(string), nil
	}

	start := time.Now()
	text, err := s.completer.Complete(ctx, BuildPrompt(ind))
	latency := time.Since(start)
	if err == nil {
		text = PlainText(text)
		if strings.TrimSpace(text) == "" {
			err = fmt.Errorf("文章生成APIが空の応答を返しました")
		}
	}
	s.metrics.RecordNarrative(err == nil, latency)

	if err != nil {
		s.logger.Warn("レポートの生成に失敗しました",
			slog.String("individual_id", ind.ID),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return "", failedError()
	}

	s.cache.SetDefault(key, text)
	return text, nil
}

// cacheKey は個体の内容が変わるとキーも変わるよう、更新日時と従属レコード数を含める。
func cacheKey(ind *model.Individual) string {
	return fmt.Sprintf("%s:%d:%d:%d", ind.ID, ind.UpdatedAt.UnixNano(), len(ind.Measurements), len(ind.Photos))
}

func unavailableError() *model.APIError {
	e := model.NewExternalServiceFailureError("AIレポート")
	e.Message = MessageUnavailable
	e.Action = "管理者に文章生成APIの設定を依頼してください。"
	return e
}

func failedError() *model.APIError {
	e := model.NewExternalServiceFailureError("AIレポート")
	e.Message = MessageFailed
	return e
}

var _ Generator = (*Service)(nil)
