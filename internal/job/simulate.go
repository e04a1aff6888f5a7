package job

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hitoshi/beetlebase/internal/model"
)

// Processor はジョブ種別ごとの処理を表す。
// 戻り値のerrorは処理そのものが実行できなかったことを表し、ジョブはそのメッセージで失敗になる。
type Processor interface {
	Process(ctx context.Context, job *model.Job) (Outcome, error)
}

// ProcessorFunc は関数をProcessorとして扱うアダプタ。
type ProcessorFunc func(ctx context.Context, job *model.Job) (Outcome, error)

func (f ProcessorFunc) Process(ctx context.Context, job *model.Job) (Outcome, error) {
	return f(ctx, job)
}

// OutcomeFunc はシミュレーションの成否を決定する。trueで成功。
type OutcomeFunc func() bool

// DefaultSuccessRate はシミュレーションの既定の成功率。
const DefaultSuccessRate = 0.7

// WeightedOutcome は指定の確率でtrueを返すOutcomeFuncを生成する。
func WeightedOutcome(successRate float64) OutcomeFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < successRate
	}
}

// AlwaysSucceed と AlwaysFail は結果を固定するOutcomeFunc。
func AlwaysSucceed() bool { return true }
func AlwaysFail() bool    { return false }

// SimulatedImport は実際のCSVを処理せずに結果を決定するインポート処理。
type SimulatedImport struct {
	Outcome OutcomeFunc
}

// simulated import の固定値。
const (
	simulatedImportTotal     = 30
	simulatedImportSucceeded = 28
	simulatedImportFailure   = "Invalid CSV format"
)

func (p SimulatedImport) Process(ctx context.Context, job *model.Job) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	decide := p.Outcome
	if decide == nil {
		decide = WeightedOutcome(DefaultSuccessRate)
	}
	if !decide() {
		return Outcome{Result: simulatedImportFailure}, nil
	}
	return Outcome{
		Success: true,
		Result:  SummaryResult(simulatedImportSucceeded, simulatedImportTotal),
	}, nil
}

// SimulatedExport は常に成功し、生成物の参照のみを返すエクスポート処理。
// 生成物の実体は作成しないため、ダウンロードはARTIFACT_NOT_FOUNDとなる。
type SimulatedExport struct{}

func (SimulatedExport) Process(ctx context.Context, job *model.Job) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Result:  ResultDownload,
		Artifact: &model.Artifact{
			Filename: fmt.Sprintf("%s-%s.pdf", job.Type, job.TargetID),
			URL:      ArtifactURL(job.ID),
		},
	}, nil
}

var (
	_ Processor = SimulatedImport{}
	_ Processor = SimulatedExport{}
	_ Processor = ProcessorFunc(nil)
)
