// Package events はジョブの状態遷移をNATS JetStreamに配信する。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hitoshi/beetlebase/internal/model"
)

const (
	// JobsStreamName はジョブイベントを保持するストリーム名。
	JobsStreamName = "JOBS"
	// JobsSubjectBase はジョブイベントのサブジェクト接頭辞。jobs.{kind}.{status} で配信する。
	JobsSubjectBase = "jobs"
)

// Publisher はジョブイベントの配信インターフェース。
type Publisher interface {
	// PublishJob はジョブの現在の状態を配信する。
	PublishJob(ctx context.Context, job *model.Job) error
	// Close は接続を閉じる。
	Close()
}

// JobEvent は配信するジョブイベントのペイロード。
type JobEvent struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	OwnerID     string    `json:"owner_id"`
	Result      string    `json:"result"`
	Attempts    int       `json:"attempts"`
	RowErrors   int       `json:"row_errors"`
	ArtifactURL string    `json:"artifact_url,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewJobEvent はジョブからイベントペイロードを生成する。
func NewJobEvent(job *model.Job) JobEvent {
	ev := JobEvent{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Type:        job.Type,
		Status:      string(job.Status),
		OwnerID:     job.OwnerID,
		Result:      job.Result,
		Attempts:    job.Attempts,
		RowErrors:   len(job.RowErrors),
		SubmittedAt: job.SubmittedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if job.Artifact != nil {
		ev.ArtifactURL = job.Artifact.URL
	}
	return ev
}

// Subject はジョブイベントのサブジェクトを返す。
func Subject(job *model.Job) string {
	return fmt.Sprintf("%s.%s.%s", JobsSubjectBase, job.Kind, job.Status)
}

// NATSPublisher はJetStreamへジョブイベントを配信する。
type NATSPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNATSPublisher はNATSに接続し、NATSPublisherを生成する。
func NewNATSPublisher(natsURL string) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("beetlebase"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("NATSへの接続に失敗しました: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("JetStreamコンテキストの作成に失敗しました: %w", err)
	}
	return &NATSPublisher{nc: nc, js: js}, nil
}

// EnsureStream はジョブイベント用のストリームを作成または更新する。
func (p *NATSPublisher) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        JobsStreamName,
		Subjects:    []string{JobsSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Description: "BeetleBase job status transitions",
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.js.CreateOrUpdateStream(opCtx, cfg); err != nil {
		return fmt.Errorf("ストリーム %s の作成に失敗しました: %w", JobsStreamName, err)
	}
	slog.Info("NATSストリームを確認しました", slog.String("stream", JobsStreamName))
	return nil
}

// PublishJob はジョブの状態を jobs.{kind}.{status} に配信する。
func (p *NATSPublisher) PublishJob(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(NewJobEvent(job))
	if err != nil {
		return fmt.Errorf("ジョブイベントのエンコードに失敗しました: %w", err)
	}
	if _, err := p.js.Publish(ctx, Subject(job), payload); err != nil {
		return fmt.Errorf("ジョブイベントの配信に失敗しました: %w", err)
	}
	return nil
}

// Ping は接続状態を確認する。
func (p *NATSPublisher) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close はNATS接続を閉じる。
func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// Noop はイベントを配信しないPublisher。NATS_URL未設定時に使用する。
type Noop struct{}

func (Noop) PublishJob(context.Context, *model.Job) error { return nil }
func (Noop) Close()                                       {}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = Noop{}
)
